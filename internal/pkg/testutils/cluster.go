package testutils

// quincy is a ceph_version label value as reported by a daemon.
const quincy = "ceph version 17.2.6 (d7ff0d10654d2280e08f1ab989c7cdf3064446a5) quincy (stable)"

// Populate loads a small healthy cluster: three mons, two mgrs, three OSDs
// on two hosts, two pools, one RBD image and one RGW daemon.
func Populate(e *Exporter) {
	e.Set("ceph_health_status", 0)
	e.Set("ceph_cluster_total_bytes", 3*(1<<40))
	e.Set("ceph_cluster_total_used_bytes", 1<<40)

	for i, host := range []string{"node1", "node2", "node3"} {
		daemon := "mon." + host
		e.Set("ceph_mon_metadata", 1, "ceph_daemon", daemon, "hostname", host, "ceph_version", quincy)
		e.Set("ceph_mon_quorum_status", 1, "ceph_daemon", daemon)
		if i < 2 {
			e.Set("ceph_mgr_metadata", 1, "ceph_daemon", "mgr."+host, "hostname", host, "ceph_version", quincy)
		}
	}

	osds := []struct{ daemon, host, device string }{
		{"osd.0", "node1", "sda=WDC-1"},
		{"osd.1", "node1", "sdb=WDC-2"},
		{"osd.2", "node2", "sda=WDC-3"},
	}
	for _, o := range osds {
		e.Set("ceph_osd_metadata", 1,
			"ceph_daemon", o.daemon, "hostname", o.host, "device_class", "ssd", "ceph_version", quincy)
		e.Set("ceph_osd_up", 1, "ceph_daemon", o.daemon)
		e.Set("ceph_osd_in", 1, "ceph_daemon", o.daemon)
		e.Set("ceph_osd_stat_bytes", 1<<40, "ceph_daemon", o.daemon)
		e.Set("ceph_osd_stat_bytes_used", 1<<38, "ceph_daemon", o.daemon)
		e.Set("ceph_disk_occupation", 1,
			"ceph_daemon", o.daemon, "instance", o.host+":9283", "device_ids", o.device)
	}

	pools := []struct{ id, name, mode string }{
		{"1", "rbd", "none"},
		{"2", "default.rgw.buckets.data", "aggressive"},
	}
	for _, p := range pools {
		e.Set("ceph_pool_metadata", 1, "pool_id", p.id, "name", p.name, "compression_mode", p.mode)
		for _, f := range []string{"ceph_pool_rd", "ceph_pool_wr", "ceph_pool_rd_bytes", "ceph_pool_wr_bytes"} {
			e.Set(f, 0, "pool_id", p.id)
		}
		e.Set("ceph_pool_stored", 1<<30, "pool_id", p.id)
		e.Set("ceph_pool_max_avail", 1<<40, "pool_id", p.id)
		e.Set("ceph_pool_percent_used", 0.1, "pool_id", p.id)
		e.Set("ceph_pool_compress_under_bytes", 0, "pool_id", p.id)
		e.Set("ceph_pool_compress_bytes_used", 0, "pool_id", p.id)
		e.Set("ceph_pool_recovering_objects_per_sec", 0, "pool_id", p.id)
		for _, state := range []string{"ceph_pg_total", "ceph_pg_active", "ceph_pg_clean"} {
			e.Set(state, 32, "pool_id", p.id)
		}
		e.Set("ceph_pg_stale", 0, "pool_id", p.id)
		e.Set("ceph_pg_unknown", 0, "pool_id", p.id)
	}

	image := []string{"pool", "rbd", "namespace", "", "image", "vm1"}
	for _, f := range []string{
		"ceph_rbd_read_ops", "ceph_rbd_write_ops", "ceph_rbd_read_bytes", "ceph_rbd_write_bytes",
		"ceph_rbd_read_latency_sum", "ceph_rbd_read_latency_count",
		"ceph_rbd_write_latency_sum", "ceph_rbd_write_latency_count",
	} {
		e.Set(f, 0, image...)
	}

	e.Set("ceph_rgw_metadata", 1, "ceph_daemon", "rgw.node3", "hostname", "node3", "ceph_version", quincy)
	for _, f := range []string{"ceph_rgw_get", "ceph_rgw_put", "ceph_rgw_get_b", "ceph_rgw_put_b"} {
		e.Set(f, 0, "ceph_daemon", "rgw.node3")
	}

	// not in the ceph namespace, filtered out by the parser
	e.Set("go_goroutines", 12)
}
