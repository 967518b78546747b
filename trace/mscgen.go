package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/djs55/message-switch/protocol"
)

// Mscgen renders trace events as an mscgen sequence chart, one arrow per
// event (acks included) from its input session to its output session. A
// side with no session is attributed to the switch itself.
func Mscgen(items []protocol.TraceItem) string {
	const broker = "switch"

	entities := map[string]struct{}{broker: {}}
	for _, it := range items {
		if it.Event.Input != nil {
			entities[*it.Event.Input] = struct{}{}
		}
		if it.Event.Output != nil {
			entities[*it.Event.Output] = struct{}{}
		}
	}
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("msc {\n")
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	fmt.Fprintf(&b, "  %s;\n", strings.Join(quoted, ", "))

	for _, it := range items {
		from, to := broker, broker
		if it.Event.Input != nil {
			from = *it.Event.Input
		}
		if it.Event.Output != nil {
			to = *it.Event.Output
		}

		label := fmt.Sprintf("%s:%s", it.Event.Queue, it.Event.Message.ID)
		if it.Event.Message.Kind == "ack" {
			label = "ack " + label
		} else if it.Event.Message.Message != nil {
			payload := string(it.Event.Message.Message.Payload)
			if len(payload) > 32 {
				payload = payload[:32] + "..."
			}
			label = fmt.Sprintf("%s %q", label, payload)
		}
		fmt.Fprintf(&b, "  %q->%q [ label = %q ];\n", from, to, label)
	}

	b.WriteString("}\n")
	return b.String()
}
