package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	progressBar   = "█"
	progressEmpty = "░"
	barWidth      = 30
)

// Progress renders a single-line terminal progress bar fed by the
// pipeline's completion callback
type Progress struct{}

// NewProgress creates a progress renderer
func NewProgress() *Progress {
	return &Progress{}
}

// Update redraws the bar. Safe to call from the pipeline's synchronous
// callback; completion order does not matter, only the counts do.
func (p *Progress) Update(done, total int, label string) {
	if total <= 0 {
		return
	}

	filled := done * barWidth / total
	bar := strings.Repeat(progressBar, filled) + strings.Repeat(progressEmpty, barWidth-filled)

	fmt.Printf("\r%s [%s] %d/%d", Cyan(label), bar, done, total)
	if done == total {
		fmt.Println()
	}
}

// PrintSummary prints the end-of-pass totals and where the log lives
func PrintSummary(total, saved, failed int, logPath string) {
	fmt.Println()
	fmt.Println(Dim("--- Summary ---"))
	fmt.Printf("Total: %d  |  Saved: %s  |  Failed: %s\n",
		total, Green(fmt.Sprintf("%d", saved)), Red(fmt.Sprintf("%d", failed)))
	fmt.Printf("Log: %s\n", logPath)
}

// Confirm asks a yes/no question on stdin, defaulting to no
func Confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", Yellow(question))

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}
