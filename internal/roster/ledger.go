package roster

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
)

// Ledger is the append-only profiles CSV written by provisioning.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string { return l.path }

// Append adds one Email,Pass,Profile_id row, writing the header first when
// the file is new or empty.
func (l *Ledger) Append(acct accounts.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write([]string{ColEmail, ColPass, ColProfileID}); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	if err := w.Write([]string{acct.Email, acct.Password, acct.ProfileID}); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Load reads every account in the ledger. A missing ledger is empty.
func (l *Ledger) Load() ([]accounts.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return nil, nil
	}
	return ReadProfiles(l.path)
}

// SenderReport writes the senders rescued from one mailbox to
// <dir>/unspammed_<account>_<timestamp>.csv.
type SenderReport struct {
	dir string
	now func() time.Time
}

func NewSenderReport(dir string) *SenderReport {
	if dir == "" {
		dir = "logs"
	}
	return &SenderReport{dir: dir, now: time.Now}
}

func (s *SenderReport) WriteSenders(account string, senders []string) (string, error) {
	name := fmt.Sprintf("unspammed_%s_%s.csv", account, s.now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(s.dir, name)
	if err := ensureDir(path); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create sender report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := make([][]string, 0, len(senders)+1)
	rows = append(rows, []string{"account", "sender"})
	for _, sender := range senders {
		rows = append(rows, []string{account, sender})
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write sender report: %w", err)
	}
	return path, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
