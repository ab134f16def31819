package chat

import (
	"strings"

	"tripchat/logger"
	"tripchat/module/chat/model"
	"tripchat/service/natsx"
)

const roomSubjectPrefix = "chat.room."

// HubSink fans events out to the local room only. Used when the service
// runs as a single node.
type HubSink struct {
	Hub *RoomHub
}

func (s *HubSink) Publish(conversationID, event string, payload any) {
	data, err := model.BuildFrame(event, payload)
	if err != nil {
		logger.Errorf("[HubSink] build frame event=%s err=%v", event, err)
		return
	}
	s.Hub.BroadcastLocal(conversationID, data)
}

// NatsSink routes events through NATS so every gateway node delivers to its
// own local room members. The publishing node receives its own event back
// via the bridge subscription, which is what delivers locally.
type NatsSink struct {
	Bus *natsx.Bus
}

func (s *NatsSink) Publish(conversationID, event string, payload any) {
	data, err := model.BuildFrame(event, payload)
	if err != nil {
		logger.Errorf("[NatsSink] build frame event=%s err=%v", event, err)
		return
	}
	if err := s.Bus.Publish(roomSubjectPrefix+conversationID, data); err != nil {
		logger.Errorf("[NatsSink] publish conv=%s err=%v", conversationID, err)
	}
}

// StartBridge subscribes to all room subjects and replays each event into
// the local hub. Every node in the deployment runs one bridge.
func StartBridge(bus *natsx.Bus, hub *RoomHub) error {
	return bus.Subscribe(roomSubjectPrefix+">", func(subject string, data []byte) {
		convID := strings.TrimPrefix(subject, roomSubjectPrefix)
		if convID == "" || convID == subject {
			return
		}
		hub.BroadcastLocal(convID, data)
	})
}
