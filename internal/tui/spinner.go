package tui

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// doneMsg reports the result of the waited-on action.
type doneMsg struct {
	err error
}

// waitModel shows a spinner until the action finishes or the user presses
// ctrl+c.
type waitModel struct {
	spinner  spinner.Model
	title    string
	cancel   context.CancelFunc
	err      error
	done     bool
	quitting bool
}

func newWaitModel(title string, cancel context.CancelFunc) waitModel {
	return waitModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))),
		),
		title:  title,
		cancel: cancel,
	}
}

// Init starts the spinner (required by Bubble Tea)
func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages (required by Bubble Tea)
func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner line (required by Bubble Tea)
func (m waitModel) View() string {
	if m.done {
		return ""
	}
	if m.quitting {
		return m.spinner.View() + " Canceling...\n"
	}
	return m.spinner.View() + " " + m.title + "\n"
}

// RunWithSpinner runs action while a spinner titled title is shown on out.
// Pressing ctrl+c cancels the context passed to action. When out is not a
// terminal pass interactive=false to run action without the spinner.
func RunWithSpinner(ctx context.Context, out io.Writer, interactive bool, title string, action func(context.Context) error) error {
	if !interactive {
		return action(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWaitModel(title, cancel), tea.WithContext(ctx), tea.WithOutput(out))

	result := make(chan error, 1)
	go func() {
		err := action(ctx)
		result <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-result
		return err
	}
	return <-result
}
