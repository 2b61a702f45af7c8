package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/enclavevm/enclave/engine"
	"github.com/enclavevm/enclave/policy"
	"github.com/enclavevm/enclave/wasi"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err        error
	eng        *engine.Engine
	instance   *engine.Instance
	pol        *policy.Policy
	filename   string
	policyFile string
	memMin     uint32
	memMax     uint32
	result     string
	funcs      []funcInfo
	inputs     []textinput.Model
	selected   int
	focusIdx   int
	state      modelState
}

type funcInfo struct {
	name    string
	params  []engine.ValueType
	results []engine.ValueType
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename, policyFile string, memMin, memMax uint32) *interactiveModel {
	return &interactiveModel{
		filename:   filename,
		policyFile: policyFile,
		memMin:     memMin,
		memMax:     memMax,
		state:      stateSelectFunc,
	}
}

type loadedMsg struct {
	err      error
	eng      *engine.Engine
	instance *engine.Instance
	pol      *policy.Policy
	funcs    []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	pol, err := loadPolicy(m.policyFile)
	if err != nil {
		return loadedMsg{err: err}
	}

	eng := engine.New()
	mod, err := eng.LoadModule(m.filename)
	if err != nil {
		eng.Close()
		return loadedMsg{err: err}
	}

	inst, err := mod.Instantiate(
		engine.WithPolicy(pol),
		engine.WithMemory(m.memMin, m.memMax),
		engine.WithCPULimit(),
	)
	if err != nil {
		eng.Close()
		return loadedMsg{err: err}
	}

	if err := wasi.NewHost(wasi.NewContext(), pol).Register(inst); err != nil {
		eng.Close()
		return loadedMsg{err: err}
	}
	if err := inst.RegisterWasmFunction(entryName, nil, nil, mod.Bytes()); err != nil {
		eng.Close()
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, name := range sortedNames(inst.Functions()) {
		params, results, err := inst.Signature(name)
		if err != nil {
			continue
		}
		funcs = append(funcs, funcInfo{name: name, params: params, results: results})
	}

	return loadedMsg{funcs: funcs, eng: eng, instance: inst, pol: pol}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.eng != nil {
				m.eng.Close()
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.funcs = msg.funcs
		m.eng = msg.eng
		m.instance = msg.instance
		m.pol = msg.pol

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.instance == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	f := m.funcs[m.selected]
	args := make([]engine.Value, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseValue(f.params[i].String(), input.Value())
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	results, err := timedCall(m.instance, m.pol, f.name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	if len(results) == 0 {
		return callResultMsg{result: "(no results)"}
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.String()
	}
	return callResultMsg{result: strings.Join(parts, ", ")}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Enclave Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f funcInfo) string {
	var params []string
	for _, p := range f.params {
		params = append(params, typeStyle.Render(p.String()))
	}
	result := ""
	if len(f.results) > 0 {
		var rs []string
		for _, r := range f.results {
			rs = append(rs, typeStyle.Render(r.String()))
		}
		result = " -> " + strings.Join(rs, ", ")
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(filename, policyFile string, memMin, memMax uint32) error {
	p := tea.NewProgram(newInteractiveModel(filename, policyFile, memMin, memMax), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
