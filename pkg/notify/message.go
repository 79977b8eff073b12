package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
	"cancelled": ":no_entry_sign:",
}

var statusLabel = map[string]string{
	"completed": "Request Completed",
	"failed":    "Request Failed",
	"cancelled": "Request Cancelled",
}

func taskURL(taskID, dashboardURL string) string {
	return fmt.Sprintf("%s/tasks/%s", dashboardURL, taskID)
}

// BuildAcceptedMessage creates Block Kit blocks announcing that the swarm
// accepted a request and started decomposing it.
func BuildAcceptedMessage(taskID, description, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":arrows_counterclockwise: *Request accepted* — the swarm is working on it.\n> %s", truncateForSlack(description))
	if dashboardURL != "" {
		text += fmt.Sprintf("\n<%s|View in Dashboard>", taskURL(taskID, dashboardURL))
	}

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildFinishedMessage creates Block Kit blocks for a terminal request
// notification.
func BuildFinishedMessage(input TaskFinishedInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[input.Status]
	if label == "" {
		label = "Request " + input.Status
	}

	var blocks []goslack.Block

	headerText := fmt.Sprintf("%s *%s*", emoji, label)
	if input.Status == "completed" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
		if input.Summary != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Summary), false, false),
				nil, nil,
			))
		}
	} else {
		if input.Error != "" {
			headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.Error))
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
	}

	if dashboardURL != "" {
		buttonText := "View Report"
		if input.Status != "completed" {
			buttonText = "View Details"
		}
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
		btn.URL = taskURL(input.TaskID, dashboardURL)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

// BuildEmergencyStopMessage creates Block Kit blocks for an emergency halt.
func BuildEmergencyStopMessage(reason string) []goslack.Block {
	text := ":rotating_light: *Emergency stop* — the swarm halted all agents."
	if reason != "" {
		text += fmt.Sprintf("\n*Reason:* %s", truncateForSlack(reason))
	}

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// truncateForSlack caps text at the Block Kit section limit. Slack counts
// characters, so the cap is applied to runes, never mid-rune.
func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view the full report in the dashboard)_"
}
