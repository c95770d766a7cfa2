// Package profile loads the prompt blocks that shape the agent's persona.
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"valorbot/pkg/prompt"
)

const providerOpenCode = "opencode"

// LoadComposer builds the prompt composer. Without configured files the
// embedded identity and personality are used; both files must be set together.
func LoadComposer(identityFile string, personalityFile string) (*prompt.Composer, error) {
	identityFile = strings.TrimSpace(identityFile)
	personalityFile = strings.TrimSpace(personalityFile)

	if identityFile == "" && personalityFile == "" {
		return prompt.NewComposer()
	}
	if identityFile == "" || personalityFile == "" {
		return nil, errors.New("agent.identity_file and agent.personality_file must be set together")
	}

	identity, err := readBlock(identityFile)
	if err != nil {
		return nil, err
	}
	personality, err := readBlock(personalityFile)
	if err != nil {
		return nil, err
	}

	return prompt.NewComposerWith(identity, personality)
}

// ResolveSystemProfile returns the base prompt installed on the agent. OpenCode
// agents carry their own prompt on the server, so they get none.
func ResolveSystemProfile(provider string, composer *prompt.Composer) string {
	if strings.EqualFold(strings.TrimSpace(provider), providerOpenCode) || composer == nil {
		return ""
	}

	return composer.Base()
}

func readBlock(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt block %s: %w", path, err)
	}

	block := strings.TrimSpace(string(content))
	if block == "" {
		return "", fmt.Errorf("prompt block %s is empty", path)
	}

	return block, nil
}
