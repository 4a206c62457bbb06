// Package protocol defines the line-based command protocol spoken by the
// datacenter's TCP server: the command grammar, the error lines, the JSON
// wire types and a small client.
//
// A request is a single UTF-8 text message; the first whitespace
// separated token selects the command, case-insensitively:
//
//	STATUS          full datacenter state (JSON)
//	LIST            crystal names, one per line
//	INFO <name>     one crystal (JSON)
//	AI_STATUS       AI metrics (JSON)
//	AI_REPORT       AI report (text)
//	AI_OPTIMIZE     run an AI sweep (JSON)
//
// Failures are reported in-band as a line starting with "ERROR: ".
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dreamware/knotdc/internal/crystal"
)

// Command names.
const (
	CmdStatus     = "STATUS"
	CmdList       = "LIST"
	CmdInfo       = "INFO"
	CmdAIStatus   = "AI_STATUS"
	CmdAIReport   = "AI_REPORT"
	CmdAIOptimize = "AI_OPTIMIZE"
)

// Commands lists every command name.
var Commands = []string{CmdStatus, CmdList, CmdInfo, CmdAIStatus, CmdAIReport, CmdAIOptimize}

// Error line messages.
const (
	ErrorPrefix    = "ERROR: "
	MsgEmpty       = "Comando vacío"
	MsgUnknown     = "Comando no reconocido"
	MsgRateLimited = "Límite de comandos excedido"
)

var (
	// ErrProtocol marks a malformed or unrecognised request or response.
	ErrProtocol = errors.New("protocol error")
	// ErrTransientIO marks a socket failure.
	ErrTransientIO = errors.New("transient i/o error")

	// ErrEmptyCommand is returned by Parse for a blank request.
	ErrEmptyCommand = fmt.Errorf("%w: empty command", ErrProtocol)
	// ErrUnknownCommand is returned by Parse for anything it cannot dispatch.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrProtocol)
	// ErrCrystalNotFound is returned by Client.Info for an unknown crystal.
	ErrCrystalNotFound = fmt.Errorf("%w: crystal not found", ErrProtocol)
)

// Command is a parsed request.
type Command struct {
	Name string   // Upper-cased command name
	Args []string // Remaining tokens
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Parse splits a request into a command and its arguments. INFO without a
// crystal name is treated as unrecognised.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}

	cmd := Command{Name: strings.ToUpper(fields[0]), Args: fields[1:]}
	switch cmd.Name {
	case CmdStatus, CmdList, CmdAIStatus, CmdAIReport, CmdAIOptimize:
		return cmd, nil
	case CmdInfo:
		if len(cmd.Args) > 0 {
			return cmd, nil
		}
	}
	return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
}

// ErrorLine formats an in-band error response.
func ErrorLine(msg string) string {
	return ErrorPrefix + msg
}

// CrystalNotFound is the error line for INFO on an unknown crystal.
func CrystalNotFound(name string) string {
	return ErrorLine(fmt.Sprintf("Cristal '%s' no encontrado", name))
}

// IsError reports whether a response is an error line.
func IsError(resp string) bool {
	return strings.HasPrefix(resp, strings.TrimSpace(ErrorPrefix))
}

// ServerInfo is the servidor_red block of a STATUS response.
type ServerInfo struct {
	Active      bool `json:"activo"`
	Port        int  `json:"puerto"`
	Connections int  `json:"conexiones"`
}

// StatusResponse is the STATUS payload.
type StatusResponse struct {
	Details    map[string]crystal.State `json:"cristales_detalle"`
	Datacenter string                   `json:"centro_datos"`
	Server     ServerInfo               `json:"servidor_red"`
	Crystals   int                      `json:"cristales"`
}

// SplitList parses a LIST response. An empty response is an empty list.
func SplitList(resp string) []string {
	var names []string
	for _, line := range strings.Split(resp, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}
