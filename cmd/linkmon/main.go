package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/alcolock/pkg/audit"
	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/link/mqtt"
	"github.com/robotalks/alcolock/pkg/protocol"
)

var (
	mqttURL = "mqtt://localhost:1883/alcolock/"
)

func init() {
	if val := os.Getenv("ALCOLOCK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func decodePacket(ch link.ChannelID, payload []byte) (interface{}, error) {
	switch ch {
	case link.ChannelBACStatus:
		return protocol.DecodeBACStatus(payload)
	case link.ChannelSystemStatus:
		return protocol.DecodeSystemStatus(payload)
	case link.ChannelVehicleCommand:
		return protocol.DecodeVehicleCommand(payload)
	}
	return nil, link.ErrInvalidChannel
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		pos := strings.LastIndex(topic, "/")
		if pos < 0 {
			log.Printf("%s: %d bytes", topic, len(payload))
			return
		}
		switch name := topic[pos+1:]; name {
		case "presence":
			if len(payload) == 0 {
				log.Printf("%s: offline", topic)
			} else {
				log.Printf("%s: %s", topic, string(payload))
			}
		case "audit":
			ev, err := audit.DecodeEvent(payload)
			if err != nil {
				log.Printf("%s: bad audit event: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, ev.String())
		default:
			ch, ok := link.ParseChannel(name)
			if !ok {
				log.Printf("%s: %d bytes", topic, len(payload))
				return
			}
			pkt, err := decodePacket(ch, payload)
			if err != nil {
				log.Printf("%s: decode error: % x %v", topic, payload, err)
				return
			}
			log.Printf("%s: %+v", topic, pkt)
		}
	}))
	<-(chan struct{})(nil)
}
