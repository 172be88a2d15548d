package simlog

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	errorColor    = color.New(color.FgRed, color.Bold)
	warningColor  = color.New(color.FgYellow)
	successColor  = color.New(color.FgGreen)
	protocolColor = color.New(color.FgCyan, color.Bold)
	nodeColor     = color.New(color.FgMagenta)
	debugColor    = color.New(color.FgWhite, color.Faint)

	colorsEnabled = true
)

// InitColors enables or disables ANSI colors, honoring NO_COLOR.
func InitColors(enabled bool) {
	colorsEnabled = enabled
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
	}
	color.NoColor = !colorsEnabled
}

// Errorf prints a red error line.
func Errorf(format string, args ...interface{}) {
	printWith(errorColor, "ERROR: "+format, args...)
}

// Warnf prints a yellow warning line.
func Warnf(format string, args ...interface{}) {
	printWith(warningColor, "WARN: "+format, args...)
}

// Successf prints a green success line.
func Successf(format string, args ...interface{}) {
	printWith(successColor, format, args...)
}

// Eventf prints a node/protocol-tagged simulation event, gated by debug
// level the same way the teacher gates protocol-specific prints.
func Eventf(cfg *Config, protocol, node string, minLevel int, format string, args ...interface{}) {
	if cfg != nil && cfg.GetProtocolLevel(protocol) < minLevel {
		return
	}
	if colorsEnabled {
		protocolColor.Printf("[%s] ", protocol)
		nodeColor.Printf("%s: ", node)
		fmt.Printf(format+"\n", args...)
		return
	}
	fmt.Printf("[%s] %s: "+format+"\n", append([]interface{}{protocol, node}, args...)...)
}

// Debugf prints a faint debug line, gated by the global level.
func Debugf(cfg *Config, minLevel int, format string, args ...interface{}) {
	if cfg != nil && cfg.GetGlobal() < minLevel {
		return
	}
	printWith(debugColor, format, args...)
}

func printWith(c *color.Color, format string, args ...interface{}) {
	if colorsEnabled {
		c.Printf(format+"\n", args...)
		return
	}
	fmt.Printf(format+"\n", args...)
}
