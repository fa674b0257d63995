// Package cache implements the typed topic-store facade (C3) described in
// SPEC_FULL.md §4.3, backed concretely by Redis: topics are hashes keyed
// topic:{name}:{uuid}, a per-name set indexes known uuids, and volatile
// command delivery rides a Pub/Sub channel per bridge instance.
package cache
