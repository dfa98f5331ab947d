// Package broker implements the vehicle data broker: it aggregates sensor
// readings into per-vehicle snapshots, keeps a bounded command history per
// vehicle and relays every accepted message to the vehicle's output topic.
//
// Messages for one vehicle are handled in arrival order by a single shard;
// messages for different vehicles are handled concurrently.
package broker
