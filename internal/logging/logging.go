package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the service logger. Local environments get the console
// encoder with debug enabled; everything else logs production JSON.
func New(env string) (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
