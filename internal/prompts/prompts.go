package prompts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptFile []byte

// Pack holds the fixed strings the conversation service sends on behalf of
// the system: the synthetic preamble exchange for brand-new chats and the
// user-visible fallback replies for gateway failures.
type Pack struct {
	// SystemPreamble is sent as the first user-role block of a brand-new
	// transcript. It substitutes for a real system-instruction channel.
	SystemPreamble string `yaml:"system_preamble"`

	// GreetingAck is the fixed model-role acknowledgment paired with the
	// preamble to satisfy the provider's user/model alternation requirement.
	GreetingAck string `yaml:"greeting_ack"`

	// FilteredReply is returned (and persisted) when the provider refuses a
	// request on content-policy grounds.
	FilteredReply string `yaml:"filtered_reply"`

	// RetryReply is returned (and persisted) when the provider is
	// unreachable.
	RetryReply string `yaml:"retry_reply"`

	// ImageReply is the bot text accompanying a generated image.
	ImageReply string `yaml:"image_reply"`
}

// Load parses the embedded prompt file.
func Load() (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(promptFile, &pack); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	if pack.SystemPreamble == "" || pack.GreetingAck == "" ||
		pack.FilteredReply == "" || pack.RetryReply == "" || pack.ImageReply == "" {
		return nil, fmt.Errorf("prompts file is missing required entries")
	}

	return &pack, nil
}
