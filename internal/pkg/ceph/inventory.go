package ceph

import (
	"sort"
	"strconv"
	"strings"

	"cmon/internal/pkg/store"

	"go.uber.org/zap"
)

// DaemonState counts the up and down daemons of one type.
type DaemonState struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// Total returns Up + Down.
func (d DaemonState) Total() int {
	return d.Up + d.Down
}

// VersionSummary is a per daemon type histogram of major versions.
type VersionSummary struct {
	ByDaemon map[string]map[string]int `json:"by_daemon"`
	All      []string                  `json:"all"`
}

// Summary renders the cluster version, "Mixed (16 + 17)" when daemons
// disagree and "unknown" when nothing reported a version.
func (v VersionSummary) Summary() string {
	switch len(v.All) {
	case 0:
		return "unknown"
	case 1:
		return v.All[0]
	default:
		return "Mixed (" + strings.Join(v.All, " + ") + ")"
	}
}

// InventoryState summarizes daemons, versions and hosts.
type InventoryState struct {
	Daemons   map[string]DaemonState `json:"daemons"`
	Versions  VersionSummary         `json:"versions"`
	Hosts     int                    `json:"hosts"`
	Hostnames []string               `json:"hostnames"`
}

// DaemonTypes lists the daemon types in display order.
var DaemonTypes = []string{"mon", "mgr", "osd", "mds", "rgw", "iscsi", "rbd-mirror", "cephfs-mirror"}

// daemonStateFamily holds the family whose 0/1 value gives each daemon's state.
var daemonStateFamily = map[string]string{
	"mon":           "ceph_mon_metadata",
	"mgr":           "ceph_mgr_metadata",
	"osd":           "ceph_osd_up",
	"mds":           "ceph_mds_metadata",
	"rgw":           "ceph_rgw_metadata",
	"iscsi":         "ceph_iscsi_metadata",
	"rbd-mirror":    "ceph_rbd_mirror_metadata",
	"cephfs-mirror": "ceph_cephfs_mirror_metadata",
}

// versionFamilies carry a ceph_version label.
var versionFamilies = []string{
	"ceph_mon_metadata",
	"ceph_mgr_metadata",
	"ceph_osd_metadata",
	"ceph_mds_metadata",
	"ceph_rgw_metadata",
	"ceph_rbd_mirror_metadata",
	"ceph_cephfs_mirror_metadata",
}

const (
	metadataSuffix = "metadata"
	versionPrefix  = "ceph version "
)

// Inventory counts daemons by state, builds the version histogram and
// collects distinct hostnames from every *metadata family.
func Inventory(s *store.Snapshot) InventoryState {
	state := InventoryState{Daemons: make(map[string]DaemonState, len(DaemonTypes))}

	for _, daemon := range DaemonTypes {
		var ds DaemonState
		for _, i := range s.Instances(daemonStateFamily[daemon]) {
			if i.Value == 1 {
				ds.Up++
			} else {
				ds.Down++
			}
		}
		state.Daemons[daemon] = ds
	}

	state.Versions = summarizeVersions(s)

	hosts := map[string]struct{}{}
	for _, name := range s.Names() {
		if !strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		for _, i := range s.Instances(name) {
			if h, ok := i.Labels["hostname"]; ok && h != "" {
				hosts[h] = struct{}{}
			}
		}
	}
	state.Hostnames = make([]string, 0, len(hosts))
	for h := range hosts {
		state.Hostnames = append(state.Hostnames, h)
	}
	sort.Strings(state.Hostnames)
	state.Hosts = len(state.Hostnames)

	return state
}

// MajorVersion reduces a version string to its first dot component.
// Daemons report "ceph version 16.1.0-752-g98cc35e1 (...) pacific (rc)",
// ceph-exporter reports "18.2.0-1252-g6a0590bd".
func MajorVersion(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), versionPrefix)
	if version == "" {
		return ""
	}

	return strings.SplitN(version, ".", 2)[0]
}

func summarizeVersions(s *store.Snapshot) VersionSummary {
	v := VersionSummary{ByDaemon: map[string]map[string]int{}}
	all := map[string]struct{}{}

	for _, name := range versionFamilies {
		for _, i := range s.Instances(name) {
			daemonType := strings.SplitN(i.Label("ceph_daemon"), ".", 2)[0]
			if daemonType == "" {
				daemonType = "unknown"
			}
			if _, ok := v.ByDaemon[daemonType]; !ok {
				v.ByDaemon[daemonType] = map[string]int{}
			}

			major := MajorVersion(i.Label("ceph_version"))
			if major == "" {
				continue
			}
			v.ByDaemon[daemonType][major]++
			all[major] = struct{}{}
		}
	}

	for daemonType, versions := range v.ByDaemon {
		if len(versions) == 0 {
			zap.S().Warnw("daemon metadata is missing ceph_version information", "daemon", daemonType)
		}
	}

	v.All = make([]string, 0, len(all))
	for major := range all {
		v.All = append(v.All, major)
	}
	sort.Slice(v.All, func(i, j int) bool {
		a, aerr := strconv.Atoi(v.All[i])
		b, berr := strconv.Atoi(v.All[j])
		if aerr != nil || berr != nil {
			return v.All[i] < v.All[j]
		}
		return a < b
	})

	return v
}
