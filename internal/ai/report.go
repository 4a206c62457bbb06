package ai

import (
	"fmt"
	"strings"

	"github.com/dreamware/knotdc/internal/correction"
)

const reportTimeLayout = "2006-01-02T15:04:05"

// Report renders the AI_REPORT text from the current metrics.
func (o *Orchestrator) Report() string {
	return RenderReport(o.Metrics())
}

// RenderReport renders metrics as the box-drawn AI report.
func RenderReport(m Metrics) string {
	rate, _ := m.SuccessRate.MarshalJSON()
	gain, _ := m.Improvement.MarshalJSON()

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	b.WriteString("\n")
	line("╔══════════════════════════════════════════════════════════╗")
	line("║         REPORTE DE IA CUÁNTICA - SISTEMA ACTIVO          ║")
	line("╠══════════════════════════════════════════════════════════╣")
	line("║ Errores Detectados:      %6d                      ║", m.Detected)
	line("║ Errores Corregidos:      %6d                      ║", m.Corrected)
	line("║ Tasa de Éxito:           %6s                      ║", strings.Trim(string(rate), `"`))
	line("║ Mejora Fidelidad:        %6s                      ║", strings.Trim(string(gain), `"`))
	line("║ Operaciones Optimizadas: %6d                      ║", m.Optimized)
	line("╠══════════════════════════════════════════════════════════╣")
	line("║ CORRECCIONES POR TIPO:                                   ║")
	line("║   • Bit Flip:    %4d                                ║", m.Stats[correction.BitFlip])
	line("║   • Phase Flip:  %4d                                ║", m.Stats[correction.PhaseFlip])
	line("║   • Decoherencia: %4d                                ║", m.Stats[correction.Decoherence])
	line("║   • Gate Error:  %4d                                ║", m.Stats[correction.GateError])
	line("╠══════════════════════════════════════════════════════════╣")
	line("║ Historial: %d errores | %d operaciones       ║", m.ErrorHistory, m.OperationHistory)
	line("║ Timestamp: %s                  ║", m.Timestamp.Format(reportTimeLayout))
	line("╚══════════════════════════════════════════════════════════╝")
	return b.String()
}
