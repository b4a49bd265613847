package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner
func PrintBanner() {
	banner.PrintSimple("Harmony Orchestrator", GetVersion())
}
