package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amishk599/applyhook/internal/model"
)

const loadTimeout = 2 * time.Minute

var (
	loaderSpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	loaderCountStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// PageFetcher returns one page of a vacancy's responses. Pages start at 1.
type PageFetcher func(ctx context.Context, page int) ([]model.Application, error)

// CacheChecker reports whether an application was already forwarded.
type CacheChecker func(ctx context.Context, id string) (bool, error)

// LoadResult is what the loader hands to the audit view.
type LoadResult struct {
	All   []model.Application // every response, page order
	Fresh []model.Application // not cached, first occurrence only
}

type pageLoadedMsg struct {
	page int
	apps []model.Application
	err  error
}

type classifiedMsg struct {
	fresh []model.Application
	err   error
}

type loaderModel struct {
	ctx       context.Context
	vacancy   model.Vacancy
	maxPages  int
	fetchPage PageFetcher
	isCached  CacheChecker
	spinner   spinner.Model

	page   int // last page requested
	all    []model.Application
	fresh  []model.Application
	err    error
	done   bool
	cancel context.CancelFunc
}

func newLoaderModel(ctx context.Context, vacancy model.Vacancy, maxPages int, fetchPage PageFetcher, isCached CacheChecker) loaderModel {
	if maxPages < 1 {
		maxPages = 1
	}
	return loaderModel{
		ctx:       ctx,
		vacancy:   vacancy,
		maxPages:  maxPages,
		fetchPage: fetchPage,
		isCached:  isCached,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(loaderSpinnerStyle)),
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.requestPage(1), m.spinner.Tick)
}

func (m loaderModel) requestPage(page int) tea.Cmd {
	ctx, fetch := m.ctx, m.fetchPage
	return func() tea.Msg {
		apps, err := fetch(ctx, page)
		return pageLoadedMsg{page: page, apps: apps, err: err}
	}
}

// classify splits the loaded responses into cached and new the same way a
// poll pass would: repeats across pages count once.
func (m loaderModel) classify() tea.Cmd {
	ctx, isCached, all := m.ctx, m.isCached, m.all
	return func() tea.Msg {
		seen := mapset.NewThreadUnsafeSet[string]()
		var fresh []model.Application
		for _, app := range all {
			if !seen.Add(app.ID) {
				continue
			}
			cached, err := isCached(ctx, app.ID)
			if err != nil {
				return classifiedMsg{err: fmt.Errorf("checking applies cache: %w", err)}
			}
			if !cached {
				fresh = append(fresh, app)
			}
		}
		return classifiedMsg{fresh: fresh}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pageLoadedMsg:
		m.page = msg.page
		if msg.err != nil {
			m.err = fmt.Errorf("page %d: %w", msg.page, msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.all = append(m.all, msg.apps...)
		if len(msg.apps) == 0 || msg.page >= m.maxPages {
			return m, m.classify()
		}
		return m, m.requestPage(msg.page + 1)

	case classifiedMsg:
		m.fresh = msg.fresh
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			m.err = errors.New("cancelled")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		if m.err != nil {
			return ""
		}
		return fmt.Sprintf("✓ %s: %d responses, %d new\n", vacancyLabel(m.vacancy), len(m.all), len(m.fresh))
	}
	progress := fmt.Sprintf("page %d/%d, %d responses so far", max(m.page, 1), m.maxPages, len(m.all))
	return fmt.Sprintf("%s Fetching responses for %s %s\n",
		m.spinner.View(), vacancyLabel(m.vacancy), loaderCountStyle.Render("("+progress+")"))
}

// RunLoader fetches pages 1..maxPages of a vacancy's responses behind a
// spinner, stopping at the first empty page, then splits them into all and
// not-yet-cached. It renders inline (no alt screen) and never writes the cache.
func RunLoader(vacancy model.Vacancy, maxPages int, fetchPage PageFetcher, isCached CacheChecker) (LoadResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	m := newLoaderModel(ctx, vacancy, maxPages, fetchPage, isCached)
	m.cancel = cancel

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return LoadResult{}, err
	}
	final := result.(loaderModel)
	if final.err != nil {
		return LoadResult{}, final.err
	}
	return LoadResult{All: final.all, Fresh: final.fresh}, nil
}
