package orchestrator

import (
	"fmt"

	"hellobot-orchestrator/internal/datasource"
	"hellobot-orchestrator/internal/models"
	"hellobot-orchestrator/internal/reasoning"
)

// retainRelevantSlots drops slot values the new intent has no use for.
// Values the new intent can reuse survive the switch.
func retainRelevantSlots(conv *models.Conversation, newIntent *models.IntentDefinition) {
	relevant := newIntent.RelevantSlots()
	for name := range conv.Slots {
		if !relevant[name] {
			delete(conv.Slots, name)
		}
	}
}

// mergeExtractedSlots folds validated extraction output into the
// conversation. Unknown slot names and values that fail the slot's type
// check are dropped, never stored.
func (e *Engine) mergeExtractedSlots(conv *models.Conversation, extraction *reasoning.Extraction) {
	for name, value := range extraction.Slots {
		slotDef, ok := e.registry.Slot(name)
		if !ok {
			continue
		}
		if !slotDef.Accepts(value) {
			e.logger.Warn("dropping invalid slot value", map[string]interface{}{
				"conversationId": conv.ID,
				"slot":           name,
			})
			continue
		}
		conv.Slots[name] = value
	}

	if conv.PendingSlot != "" {
		if _, filled := conv.Slots[conv.PendingSlot]; filled {
			conv.PendingSlot = ""
		}
	}
}

// firstMissingSlot walks the intent's required slots in declared order and
// returns the first one without a value.
func firstMissingSlot(conv *models.Conversation, intent *models.IntentDefinition) string {
	for _, name := range intent.RequiredSlots {
		if conv.Slots[name] == "" {
			return name
		}
	}
	return ""
}

// applyDerivedSlots copies configured record fields into the slot map after
// a successful fetch, so follow-up intents can key off retrieved facts.
func applyDerivedSlots(conv *models.Conversation, intent *models.IntentDefinition, record *datasource.Record) {
	for field, slotName := range intent.DerivedSlots {
		value, ok := record.Fields[field]
		if !ok {
			continue
		}
		str := fmt.Sprint(value)
		if str == "" {
			continue
		}
		conv.Slots[slotName] = str
	}
}
