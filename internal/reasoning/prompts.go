package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"hellobot-orchestrator/internal/models"
)

func (a *Adapter) historyMessages(conv *models.Conversation) []chatMessage {
	window := conv.Window(a.config.HistoryWindow)
	out := make([]chatMessage, 0, len(window))
	for _, turn := range window {
		out = append(out, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return out
}

func (a *Adapter) extractionMessages(conv *models.Conversation) []chatMessage {
	var sb strings.Builder
	sb.WriteString("You classify customer support requests. Supported intents:\n")
	for _, def := range a.registry.Definitions() {
		sb.WriteString(fmt.Sprintf("- %s: %s", def.Name, def.Description))
		if len(def.RequiredSlots) > 0 {
			sb.WriteString(fmt.Sprintf(" (needs: %s)", strings.Join(def.RequiredSlots, ", ")))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nSlot extraction hints:\n")
	for _, def := range a.registry.Definitions() {
		for _, slotName := range def.RequiredSlots {
			if slot, ok := a.registry.Slot(slotName); ok && slot.ExtractionHint != "" {
				sb.WriteString(fmt.Sprintf("- %s: %s\n", slot.Name, slot.ExtractionHint))
			}
		}
	}
	sb.WriteString("\nRespond with JSON only: {\"intent\": \"<intent name or unknown>\", \"slots\": {\"<slot>\": \"<value>\"}}.\n")
	sb.WriteString("Include only slot values the user actually stated. Never invent values.")

	messages := []chatMessage{{Role: "system", Content: sb.String()}}
	return append(messages, a.historyMessages(conv)...)
}

func (a *Adapter) slotPromptMessages(conv *models.Conversation, slot models.SlotDefinition) []chatMessage {
	system := fmt.Sprintf(
		"You are a helpful support assistant. Ask the user one short, polite question for their %s. %s Ask only for this single piece of information.",
		strings.ReplaceAll(slot.Name, "_", " "), slot.ExtractionHint,
	)
	messages := []chatMessage{{Role: "system", Content: system}}
	return append(messages, a.historyMessages(conv)...)
}

func (a *Adapter) clarifyMessages(conv *models.Conversation) []chatMessage {
	supported := make([]string, 0, len(a.registry.Definitions()))
	for _, def := range a.registry.Definitions() {
		supported = append(supported, def.Description)
	}
	system := fmt.Sprintf(
		"You are a helpful support assistant. The user's request did not match anything you can do. Briefly ask them to restate it, mentioning you can help with: %s.",
		strings.Join(supported, "; "),
	)
	messages := []chatMessage{{Role: "system", Content: system}}
	return append(messages, a.historyMessages(conv)...)
}

func (a *Adapter) frameMessages(conv *models.Conversation, data map[string]interface{}, found bool) []chatMessage {
	var system string
	if found {
		snippet, _ := json.Marshal(data)
		system = fmt.Sprintf(
			"You are a helpful support assistant. Answer the user's question using ONLY the retrieved data below. Do not invent details.\n\nRetrieved data: %s",
			string(snippet),
		)
	} else {
		system = "You are a helpful support assistant. No matching records were found for the user's request. Tell them so politely and suggest they double-check the details they provided. Do not invent any data."
	}
	messages := []chatMessage{{Role: "system", Content: system}}
	return append(messages, a.historyMessages(conv)...)
}
