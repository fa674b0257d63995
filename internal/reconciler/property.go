package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/mangle"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// persistentFields are carried forward from the previously cached actuator
// topic onto every fresh status write (spec §4.7 step 2): the bridge never
// learns these from telemetry, only from provisioning.
var persistentFields = []string{"user_login", "user_password", "mac_address", "id"}

// handlePropertyStatus implements handle_property_status(msg) (spec §4.7):
// parse, merge persistent fields plus a fresh timestamp, write back, then
// fan out to every dependent domo_actuator_connection source (I3).
func (r *Reconciler) handlePropertyStatus(ctx context.Context, msg actuator.PropertyStatus) error {
	obj, err := msg.Status.Object()
	if err != nil {
		return fmt.Errorf("propertyStatus.status must be an object: %w", err)
	}

	rawMAC, _ := obj["mac_address"].String()
	mac, err := topic.CanonicalizeMAC(rawMAC)
	if err != nil {
		return fmt.Errorf("propertyStatus mac_address: %w", err)
	}

	rawTopicName, _ := obj["topic_name"].String()
	if rawTopicName == "" {
		return fmt.Errorf("propertyStatus missing topic_name for mac %s", mac)
	}
	topicName := topic.Name(rawTopicName)

	updatedProps := stringArrayField(obj, "updated_properties")

	overrides := make(map[string]cachevalue.Value, len(persistentFields)+1)
	if existing, err := r.cache.GetTopicUUID(ctx, topicName, mac); err == nil {
		existingObj, err := existing.Value.Object()
		if err == nil {
			for _, field := range persistentFields {
				if v, ok := existingObj[field]; ok {
					overrides[field] = v
				}
			}
		}
	}
	overrides["last_update_timestamp"] = cachevalue.FromFloat64(float64(time.Now().UnixMilli()))

	merged := mergeFields(msg.Status, overrides)

	if err := r.cache.WriteValue(ctx, topicName, mac, merged); err != nil {
		return fmt.Errorf("writing actuator topic %s/%s: %w", topicName, mac, err)
	}

	return r.fanOutConnections(ctx, topicName, mac, merged, updatedProps)
}

// fanOutConnections walks every domo_actuator_connection whose target is
// (topicName, mac), applies the topic-mangler, and writes the resulting
// patch onto each bound source topic (I3: within one scheduler tick).
func (r *Reconciler) fanOutConnections(ctx context.Context, topicName topic.Name, mac string, actuatorValue cachevalue.Value, updatedProps []string) error {
	conns, err := r.cache.GetTopicName(ctx, topic.NameActuatorConnection)
	if err != nil {
		return fmt.Errorf("listing actuator_connections: %w", err)
	}

	for _, connTopic := range conns {
		conn, err := topic.DecodeActuatorConnection(connTopic.Value)
		if err != nil {
			r.log.Warn("dropping malformed actuator_connection", "error", err, "uuid", connTopic.UUID)
			continue
		}
		if conn.TargetTopicName != topicName || conn.TargetTopicUUID != mac {
			continue
		}

		oldEnergy := r.readOldEnergy(ctx, conn.SourceTopicName, conn.SourceTopicUUID)

		patch, ok := mangle.Mangle(mangle.Input{
			SourceKind:        conn.SourceTopicName,
			TargetKind:        topicName,
			Channel:           conn.TargetChannelNum,
			ActuatorValue:     actuatorValue,
			OldEnergy:         oldEnergy,
			UpdatedProperties: updatedProps,
		})
		if !ok {
			continue
		}

		patch.Fields["last_update_timestamp"] = cachevalue.FromFloat64(float64(time.Now().UnixMilli()))
		patch.Fields["updated_properties"] = cachevalue.FromStringArray(patch.UpdatedProperties)

		sourceValue := cachevalue.FromObject(patch.Fields)
		if existing, err := r.cache.GetTopicUUID(ctx, conn.SourceTopicName, conn.SourceTopicUUID); err == nil {
			sourceValue = mergeFields(existing.Value, patch.Fields)
		}

		if err := r.cache.WriteValue(ctx, conn.SourceTopicName, conn.SourceTopicUUID, sourceValue); err != nil {
			r.log.Warn("writing fanned-out source topic failed", "error", err, "name", conn.SourceTopicName, "uuid", conn.SourceTopicUUID)
			continue
		}

		if conn.SourceTopicName == topic.NameDomoPowerEnergy && r.energy != nil {
			r.writeEnergySample(conn.SourceTopicUUID, conn.TargetChannelNum, patch.Fields)
		}
	}
	return nil
}

// writeEnergySample forwards a mangled power/energy patch to the optional
// telemetry writer (C11). Missing fields are silently skipped rather than
// treated as an error: not every mangle rule that touches this source topic
// necessarily produces both fields on every tick.
func (r *Reconciler) writeEnergySample(sourceTopicUUID string, channel int, fields map[string]cachevalue.Value) {
	power, err := fields["power"].Float64()
	if err != nil {
		return
	}
	energy, err := fields["energy"].Float64()
	if err != nil {
		return
	}
	r.energy.WriteEnergyMetric(sourceTopicUUID, channel, power, energy)
}

func (r *Reconciler) readOldEnergy(ctx context.Context, name topic.Name, uuid string) float64 {
	existing, err := r.cache.GetTopicUUID(ctx, name, uuid)
	if err != nil {
		return 0
	}
	obj, err := existing.Value.Object()
	if err != nil {
		return 0
	}
	v, ok := obj["energy"]
	if !ok {
		return 0
	}
	f, err := v.Float64()
	if err != nil {
		return 0
	}
	return f
}

// mergeFields overlays overrides onto base's object fields, preserving
// fields base already had that overrides does not touch. Used both for
// persistent-field carry-forward and for applying a mangle Patch onto a
// source topic's existing value.
func mergeFields(base cachevalue.Value, overrides map[string]cachevalue.Value) cachevalue.Value {
	existing, err := base.Object()
	if err != nil {
		existing = nil
	}
	merged := make(map[string]cachevalue.Value, len(existing)+len(overrides))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return cachevalue.FromObject(merged)
}
