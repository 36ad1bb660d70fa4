package modhost

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventSource is the CloudEvents source attribute of loader events.
const EventSource = "modhost/loader"

// NewCloudEvent creates a CloudEvent with a time-ordered ID and JSON data.
func NewCloudEvent(eventType, source string, data any, extensions map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range extensions {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID prefers UUIDv7 for time-ordered IDs.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ModuleEvent decodes the payload of a loader event.
func ModuleEvent(event cloudevents.Event) (ModuleEventData, error) {
	var data ModuleEventData
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("decode module event %s: %w", event.ID(), err)
	}
	return data, nil
}

func moduleEventData(m Module) ModuleEventData {
	return ModuleEventData{
		ModuleID: m.ID(),
		Name:     m.Name(),
		Version:  m.Version(),
		Priority: m.Priority().String(),
		Status:   m.Status().String(),
	}
}
