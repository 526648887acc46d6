// Package domain contains the values exchanged between the watcher's
// components: snapshots of the monitored region, per-cycle results,
// notification events and delivery results. They carry no behavior beyond
// small helpers and are free of infrastructure concerns.
package domain
