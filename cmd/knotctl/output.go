package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/exp/slices"

	"github.com/dreamware/knotdc/internal/ai"
	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/protocol"
)

var (
	colorTitle = lipgloss.Color("#2CD7C7")
	colorWarn  = lipgloss.Color("#F4D03F")
	colorMuted = lipgloss.Color("#2C4A54")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func title(w io.Writer, s string) {
	fmt.Fprintln(w, titleStyle.Render(s))
}

func printStatus(w io.Writer, st protocol.StatusResponse) {
	title(w, "Centro de datos "+st.Datacenter)

	state := "inactivo"
	if st.Server.Active {
		state = "activo"
	}
	fmt.Fprintf(w, "Servidor:   %s, puerto %d, %d conexiones\n", state, st.Server.Port, st.Server.Connections)
	fmt.Fprintf(w, "Cristales:  %d\n", st.Crystals)

	if len(st.Details) == 0 {
		return
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CRISTAL\tDIMENSIONES\tUSADA\tTOTAL\tOCUPACIÓN\tENERGÍA")
	for _, name := range sortedKeys(st.Details) {
		c := st.Details[name]
		fmt.Fprintf(tw, "%s\t%dx%dx%d\t%d\t%d\t%s\t%.4f\n",
			name, c.Dimensions.X, c.Dimensions.Y, c.Dimensions.Z, c.Used, c.Total, c.Occupancy, c.Energy)
	}
	tw.Flush()
}

func printList(w io.Writer, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(No hay cristales)"))
		return
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

func printCrystal(w io.Writer, c crystal.State) {
	title(w, "Cristal "+c.Name)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Dimensiones:\t%dx%dx%d\n", c.Dimensions.X, c.Dimensions.Y, c.Dimensions.Z)
	fmt.Fprintf(tw, "Capacidad:\t%d/%d\n", c.Used, c.Total)
	fmt.Fprintf(tw, "Ocupación:\t%s\n", c.Occupancy)
	fmt.Fprintf(tw, "Energía:\t%.4f\n", c.Energy)
	fmt.Fprintf(tw, "Timestamp:\t%s\n", c.Timestamp)
	tw.Flush()
}

func printMetrics(w io.Writer, m ai.Metrics) {
	title(w, "Estado de IA cuántica")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Errores detectados:\t%d\n", m.Detected)
	fmt.Fprintf(tw, "Errores corregidos:\t%d\n", m.Corrected)
	fmt.Fprintf(tw, "Tasa de éxito:\t%.2f%%\n", float64(m.SuccessRate)*100)
	fmt.Fprintf(tw, "Mejora de fidelidad:\t%.4f\n", float64(m.Improvement))
	fmt.Fprintf(tw, "Operaciones optimizadas:\t%d\n", m.Optimized)
	fmt.Fprintf(tw, "Patrones aprendidos:\t%d\n", m.Patterns)
	fmt.Fprintf(tw, "Historial de errores:\t%d\n", m.ErrorHistory)
	fmt.Fprintf(tw, "Historial de operaciones:\t%d\n", m.OperationHistory)
	for _, kind := range sortedKeys(m.Stats) {
		fmt.Fprintf(tw, "  %s:\t%d\n", kind, m.Stats[kind])
	}
	tw.Flush()
}

func printSweep(w io.Writer, r ai.SweepResult) {
	title(w, "Optimización completada")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Cristales:\t%d\n", r.Crystals)
	fmt.Fprintf(tw, "Nudos:\t%d\n", r.Knots)
	fmt.Fprintf(tw, "Cubits:\t%d\n", r.Units)
	fmt.Fprintf(tw, "Errores encontrados:\t%d\n", r.ErrorsFound)
	fmt.Fprintf(tw, "Errores corregidos:\t%d\n", r.ErrorsCorrected)
	fmt.Fprintf(tw, "Optimizaciones:\t%d\n", r.Optimizations)
	fmt.Fprintf(tw, "Duración:\t%.2f ms\n", r.DurationMillis)
	fmt.Fprintf(tw, "Sugerencias:\treconfigurar %d, rebalancear %d, redundancia %d\n",
		r.Suggestions.Reconfigure, r.Suggestions.Rebalance, r.Suggestions.Redundancy)
	tw.Flush()

	if len(r.Anomalies) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d anomalías", len(r.Anomalies))))
	for _, a := range r.Anomalies {
		fmt.Fprintf(w, "  %s\n", a)
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
