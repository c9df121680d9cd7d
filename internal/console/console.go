// Package console is a headless UI adapter for the command line. It keeps
// the last state the controller published, answers dialogs from preset
// choices or a line-oriented input, and prints notifications.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
)

const confirmYes = "yes"

// Launcher starts an external program without waiting for it.
type Launcher func(name string, args ...string) error

// Options configures a Peer.
type Options struct {
	Out io.Writer
	// In answers confirmations and prompts. With no In, confirmations are
	// declined unless AssumeYes is set and prompts are cancelled.
	In        io.Reader
	AssumeYes bool
	Launcher  Launcher
}

// Peer implements the controller's adapter interface. Its methods are called
// on the dispatch loop; the accessors may be called from anywhere.
type Peer struct {
	mu        sync.Mutex
	out       io.Writer
	in        *bufio.Reader
	assumeYes bool
	launch    Launcher

	view       models.View
	selected   []string
	toolbar    affordance.Toolbar
	menus      map[models.View]affordance.Menu
	inProgress []models.InProgressEntry
	finished   []models.FinishedEntry
	clipboard  string
	messages   []string

	queueChoice string
	answers     []string
	files       []string
	onChange    func()
}

// New creates a console peer.
func New(opts Options) *Peer {
	p := &Peer{
		out:       opts.Out,
		assumeYes: opts.AssumeYes,
		launch:    opts.Launcher,
		menus:     make(map[models.View]affordance.Menu),
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if opts.In != nil {
		p.in = bufio.NewReader(opts.In)
	}
	if p.launch == nil {
		p.launch = startProcess
	}
	return p
}

func startProcess(name string, args ...string) error {
	// #nosec G204
	return exec.Command(name, args...).Start()
}

// Select switches to view and selects ids in it.
func (p *Peer) Select(view models.View, ids ...string) {
	p.mu.Lock()
	p.view = view
	p.selected = append([]string(nil), ids...)
	p.mu.Unlock()
}

// ChooseQueue presets the answer to the next queue selection.
func (p *Peer) ChooseQueue(queueID string) {
	p.mu.Lock()
	p.queueChoice = queueID
	p.mu.Unlock()
}

// QueueAnswer presets the answer to the next text prompt.
func (p *Peer) QueueAnswer(text string) {
	p.mu.Lock()
	p.answers = append(p.answers, text)
	p.mu.Unlock()
}

// QueueFile presets the answer to the next file chooser.
func (p *Peer) QueueFile(path string) {
	p.mu.Lock()
	p.files = append(p.files, path)
	p.mu.Unlock()
}

// SetOutput redirects notifications to w.
func (p *Peer) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.out = w
	p.mu.Unlock()
}

// AssumeYes sets whether confirmations are answered yes without asking.
func (p *Peer) AssumeYes(yes bool) {
	p.mu.Lock()
	p.assumeYes = yes
	p.mu.Unlock()
}

// OnChange registers fn to run on the loop whenever a list changes.
func (p *Peer) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Rows returns copies of the lists last published by the controller.
func (p *Peer) Rows() ([]models.InProgressEntry, []models.FinishedEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.InProgressEntry(nil), p.inProgress...), append([]models.FinishedEntry(nil), p.finished...)
}

// ToolbarState returns the last toolbar state.
func (p *Peer) ToolbarState() affordance.Toolbar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toolbar
}

// MenuState returns the last menu state for view.
func (p *Peer) MenuState(view models.View) affordance.Menu {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.menus[view]
}

// Clipboard returns the text last copied.
func (p *Peer) Clipboard() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clipboard
}

// Messages returns every message shown so far.
func (p *Peer) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

func (p *Peer) changed() {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *Peer) printf(format string, args ...any) {
	fmt.Fprintf(p.output(), format, args...)
}

func (p *Peer) output() io.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

// readLine prints question and reads one trimmed line. ok is false when
// there is no input.
func (p *Peer) readLine(question string) (string, bool) {
	if p.in == nil {
		return "", false
	}
	p.printf("%s", question)
	input, err := p.in.ReadString('\n')
	if err != nil && input == "" {
		if err != io.EOF {
			log.WithError(err).Error("Error reading input")
		}
		return "", false
	}
	return strings.TrimSpace(input), true
}

func (p *Peer) Confirm(message string) bool {
	p.mu.Lock()
	yes := p.assumeYes
	p.mu.Unlock()
	if yes {
		log.Debugf("Assuming yes: %s", message)
		return true
	}
	input, ok := p.readLine(fmt.Sprintf("%s (y/N): ", message))
	if !ok {
		return false
	}
	input = strings.ToLower(input)
	return input == "y" || input == confirmYes
}

func (p *Peer) ShowQueueSelection(queues []models.Queue, ids []string, onSelected func(queueID string), onManage func()) {
	p.mu.Lock()
	choice := p.queueChoice
	p.queueChoice = ""
	p.mu.Unlock()

	if choice != "" {
		onSelected(choice)
		return
	}
	p.printf("\nAvailable queues for %d download(s):\n\n", len(ids))
	tw := tabwriter.NewWriter(p.output(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Queue ID\tName\tDownloads")
	fmt.Fprintln(tw, "--------\t----\t---------")
	for _, q := range queues {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", q.ID, helpers.TruncateString(q.Name, 30), len(q.DownloadIDs))
	}
	tw.Flush()
	log.Info("No queue chosen, nothing moved.")
}

func (p *Peer) ShowQueueManager(onClosed func()) {
	p.printf("Manage queues with the 'queue' command.\n")
	if onClosed != nil {
		onClosed()
	}
}

func (p *Peer) CurrentView() models.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *Peer) SwitchView(v models.View) {
	p.mu.Lock()
	p.view = v
	p.mu.Unlock()
}

func (p *Peer) SelectedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.selected...)
}

func (p *Peer) ClearSelection() {
	p.mu.Lock()
	p.selected = nil
	p.mu.Unlock()
}

func (p *Peer) SetToolbar(t affordance.Toolbar) {
	p.mu.Lock()
	p.toolbar = t
	p.mu.Unlock()
}

func (p *Peer) SetMenu(view models.View, m affordance.Menu) {
	p.mu.Lock()
	p.menus[view] = m
	p.mu.Unlock()
}

func (p *Peer) ShowInProgress(entries []models.InProgressEntry) {
	p.mu.Lock()
	p.inProgress = entries
	p.mu.Unlock()
	p.changed()
}

func (p *Peer) ShowFinished(entries []models.FinishedEntry) {
	p.mu.Lock()
	p.finished = entries
	p.mu.Unlock()
	p.changed()
}

func (p *Peer) EntryChanged(e models.InProgressEntry) {
	p.mu.Lock()
	for i := range p.inProgress {
		if p.inProgress[i].ID == e.ID {
			p.inProgress[i] = e
			break
		}
	}
	p.mu.Unlock()
	p.changed()
}

func (p *Peer) ShowMessage(message string) {
	p.mu.Lock()
	p.messages = append(p.messages, message)
	p.mu.Unlock()
	p.printf("%s\n", message)
}

func (p *Peer) Prompt(message, initial string) (string, bool) {
	p.mu.Lock()
	if len(p.answers) > 0 {
		answer := p.answers[0]
		p.answers = p.answers[1:]
		p.mu.Unlock()
		return answer, true
	}
	p.mu.Unlock()

	input, ok := p.readLine(fmt.Sprintf("%s [%s]: ", message, initial))
	if !ok {
		return "", false
	}
	if input == "" {
		return initial, true
	}
	return input, true
}

func (p *Peer) ChooseFile(title string, save bool) (string, bool) {
	p.mu.Lock()
	if len(p.files) > 0 {
		path := p.files[0]
		p.files = p.files[1:]
		p.mu.Unlock()
		return path, true
	}
	p.mu.Unlock()

	input, ok := p.readLine(title + ": ")
	if !ok || input == "" {
		return "", false
	}
	return input, true
}

func (p *Peer) ShowProperties(e models.DownloadEntry) {
	tw := tabwriter.NewWriter(p.output(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", e.ID)
	fmt.Fprintf(tw, "Name\t%s\n", e.Name)
	fmt.Fprintf(tw, "Address\t%s\n", e.PrimaryURL)
	fmt.Fprintf(tw, "Folder\t%s\n", e.TargetDir)
	fmt.Fprintf(tw, "Type\t%s\n", e.DownloadType)
	fmt.Fprintf(tw, "Size\t%s\n", helpers.FormatSize(float64(e.Size)))
	fmt.Fprintf(tw, "Added\t%s\n", e.DateAdded.Format("2006-01-02 15:04:05"))
	tw.Flush()
}

func (p *Peer) ShowProgressWindow(id string) {
	p.printf("Progress for %s is shown while 'xdm start' runs.\n", id)
}

func (p *Peer) ShowDownloadFailed(e models.InProgressEntry) {
	p.printf("Download failed: %s\n", e.Name)
}

func (p *Peer) ShowDownloadComplete(e models.FinishedEntry) {
	p.printf("Download complete: %s -> %s\n", e.Name, e.FilePath)
}

// ShowNewDownloadDialog has no dialog to show; it reports the link and
// closes straight away.
func (p *Peer) ShowNewDownloadDialog(url string, onClosed func()) {
	if url != "" {
		p.printf("New download requested: %s\n", url)
	}
	onClosed()
}

func (p *Peer) SetClipboard(text string) {
	p.mu.Lock()
	p.clipboard = text
	p.mu.Unlock()
}

func (p *Peer) OpenFile(path string) error { return p.open(path) }

func (p *Peer) OpenFolder(dir, file string) error { return p.open(dir) }

func (p *Peer) OpenBrowser(url string) error { return p.open(url) }

func (p *Peer) open(target string) error {
	name, args := opener(runtime.GOOS)
	if err := p.launch(name, append(args, target)...); err != nil {
		return fmt.Errorf("opening %s: %w", target, err)
	}
	return nil
}

// opener returns the platform command that opens files and links.
func opener(goos string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	case "darwin":
		return "open", nil
	}
	return "xdg-open", nil
}
