package outlook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/outlook-sweeper/internal/browser"
)

// junk reports every visible message as junk, Focused tab first, then Other.
func (r *Runner) junk(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	log.Info().Msg("processing focused tab")
	if err := r.reportVisible(ctx, ctrl, log); err != nil {
		return err
	}
	r.pacer.Jitter(ctx)

	if err := r.switchTab(ctx, ctrl, "Other", 10*time.Second); err != nil {
		log.Info().Err(err).Msg("other tab not processed")
		return nil
	}
	return r.reportVisible(ctx, ctrl, log)
}

func (r *Runner) reportVisible(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	processed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.pacer.Wait(ctx, 3*time.Second)

		id, ok := r.nextRow(ctx, ctrl, processed, log)
		if !ok {
			return nil
		}
		processed[id] = struct{}{}
		if err := r.reportOne(ctx, ctrl, id, log); err != nil {
			log.Warn().Err(err).Str("convid", id).Msg("could not report message")
		}
	}
}

// nextRow returns the first visible message row not yet in processed.
func (r *Runner) nextRow(ctx context.Context, ctrl browser.Controller, processed map[string]struct{}, log zerolog.Logger) (string, bool) {
	ids, err := ctrl.VisibleAttr(ctx, selRow, "data-convid")
	if err != nil || len(ids) == 0 {
		log.Info().Msg("no messages on page")
		return "", false
	}
	for _, id := range ids {
		if _, done := processed[id]; !done {
			return id, true
		}
	}
	log.Info().Msg("no unprocessed visible messages")
	return "", false
}

func (r *Runner) reportOne(ctx context.Context, ctrl browser.Controller, id string, log zerolog.Logger) error {
	log.Info().Str("convid", id).Msg("reporting message")
	if err := ctrl.WaitGone(ctx, selDialog, 3*time.Second); err != nil {
		log.Warn().Msg("modal dialog still open")
	}
	row := selRowByID(id)
	if err := r.openRow(ctx, ctrl, row); err != nil {
		return err
	}
	if err := ctrl.Press(ctx, "j"); err != nil {
		return fmt.Errorf("press j: %w", err)
	}
	r.pacer.Jitter(ctx)

	reported := false
	for try := 0; try < 2 && !reported; try++ {
		if err := ctrl.Click(ctx, selReport, 5*time.Second); err != nil {
			log.Warn().Err(err).Int("try", try+1).Msg("report click failed")
			r.pacer.Wait(ctx, time.Second)
			continue
		}
		reported = true
		r.pacer.Jitter(ctx)
		if err := ctrl.Click(ctx, selOK, 3*time.Second); err == nil {
			log.Debug().Msg("confirmed report")
		}
	}
	if !reported {
		log.Info().Str("convid", id).Msg("no report button, skipping")
	}

	if err := ctrl.WaitGone(ctx, row, 5*time.Second); err != nil {
		log.Warn().Str("convid", id).Msg("message still in list")
	}
	return nil
}

func (r *Runner) openRow(ctx context.Context, ctrl browser.Controller, row string) error {
	if err := ctrl.ScrollIntoView(ctx, row); err != nil {
		return fmt.Errorf("scroll to message: %w", err)
	}
	r.pacer.Jitter(ctx)
	if err := ctrl.Click(ctx, row, 5*time.Second); err != nil {
		return fmt.Errorf("open message: %w", err)
	}
	r.pacer.Jitter(ctx)
	if err := ctrl.WaitFor(ctx, selMain, 10*time.Second); err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	return nil
}

func (r *Runner) switchTab(ctx context.Context, ctrl browser.Controller, name string, timeout time.Duration) error {
	if err := ctrl.Click(ctx, selTab(name), timeout); err != nil {
		return fmt.Errorf("%s tab: %w", name, err)
	}
	r.pacer.Jitter(ctx)
	if err := ctrl.WaitForLoad(ctx, 30*time.Second); err != nil {
		return fmt.Errorf("%s tab load: %w", name, err)
	}
	return ctrl.WaitFor(ctx, selMain, 30*time.Second)
}

// unjunk moves mail from target senders out of Junk, records who was
// rescued, then archives the inbox.
func (r *Runner) unjunk(ctx context.Context, ctrl browser.Controller, email string, log zerolog.Logger) error {
	senders := r.rescue(ctx, ctrl, log)
	if len(senders) == 0 {
		log.Info().Msg("no senders rescued")
	} else if r.senders != nil {
		path, err := r.senders.WriteSenders(email, senders)
		if err != nil {
			log.Error().Err(err).Msg("write rescued senders")
		} else {
			log.Info().Str("path", path).Int("senders", len(senders)).Msg("rescued senders saved")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.archiveInbox(ctx, ctrl, log)
}

func (r *Runner) rescue(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) []string {
	var rescued []string
	if err := ctrl.Click(ctx, selJunkFolder, 10*time.Second); err != nil {
		log.Error().Err(err).Msg("junk folder not reachable")
		return nil
	}
	r.pacer.Jitter(ctx)

	processed := make(map[string]struct{})
	scrolls := 0
	for ctx.Err() == nil {
		ids, err := ctrl.VisibleAttr(ctx, selRow, "data-convid")
		if err != nil || len(ids) == 0 {
			break
		}

		found := false
		for _, id := range ids {
			if _, done := processed[id]; done {
				continue
			}
			processed[id] = struct{}{}

			row := selRowByID(id)
			sender, err := ctrl.ChildAttr(ctx, row, selSender, "title", 3*time.Second)
			if err != nil || !r.isTarget(sender) {
				continue
			}
			log.Info().Str("sender", sender).Msg("found junk from target sender")
			if r.markNotJunk(ctx, ctrl, row, log) {
				rescued = append(rescued, sender)
			}
			found = true
			break
		}
		if found {
			continue
		}
		if scrolls >= r.cfg.MaxScrolls {
			log.Info().Msg("no more matching messages")
			break
		}
		if err := ctrl.ScrollIntoView(ctx, selRowByID(ids[len(ids)-1])); err != nil {
			break
		}
		r.pacer.Wait(ctx, 2*time.Second)
		scrolls++
	}
	return rescued
}

func (r *Runner) markNotJunk(ctx context.Context, ctrl browser.Controller, row string, log zerolog.Logger) bool {
	if err := ctrl.Click(ctx, row, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("open junk message")
		return false
	}
	r.pacer.Jitter(ctx)
	if err := ctrl.WaitFor(ctx, selMain, 10*time.Second); err != nil {
		log.Warn().Err(err).Msg("junk message content")
		return false
	}
	r.pacer.Jitter(ctx)

	if err := ctrl.Click(ctx, selReportDropdown, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("report options not available")
		return false
	}
	r.pacer.Wait(ctx, time.Second)
	if err := ctrl.Click(ctx, selNotJunk, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("not junk item not available")
		return false
	}
	log.Info().Msg("marked as not junk")
	if err := ctrl.Click(ctx, selReport, 5*time.Second); err == nil {
		log.Debug().Msg("confirmed not junk")
	}
	return true
}

// archiveInbox archives everything in Inbox, Focused then Other.
func (r *Runner) archiveInbox(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	if err := ctrl.Click(ctx, selInbox, 10*time.Second); err != nil {
		return fmt.Errorf("inbox folder: %w", err)
	}
	log.Info().Msg("archiving focused tab")
	r.archiveAll(ctx, ctrl, log)
	r.pacer.Jitter(ctx)

	if err := r.switchTab(ctx, ctrl, "Other", 10*time.Second); err != nil {
		log.Info().Err(err).Msg("other tab not processed")
		return nil
	}
	r.archiveAll(ctx, ctrl, log)
	return nil
}

func (r *Runner) archiveAll(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) {
	if err := ctrl.WaitFor(ctx, selListbox, 10*time.Second); err != nil {
		log.Info().Msg("message list not shown, nothing to archive")
		return
	}
	r.press(ctx, ctrl, "Control+a", log)
	r.press(ctx, ctrl, "e", log)
	r.pacer.Wait(ctx, 10*time.Second)

	for round := 0; round < r.cfg.ArchiveRounds && ctx.Err() == nil; round++ {
		ids, err := ctrl.VisibleAttr(ctx, selRow, "data-convid")
		if err != nil || len(ids) == 0 {
			log.Info().Msg("archive complete")
			break
		}
		log.Info().Int("visible", len(ids)).Msg("messages still visible, archiving manually")

		row := selRowByID(ids[0])
		_ = ctrl.ScrollIntoView(ctx, row)
		r.pacer.Wait(ctx, 500*time.Millisecond)
		if err := ctrl.Click(ctx, row, 5*time.Second); err != nil {
			log.Warn().Err(err).Msg("could not select message")
			break
		}
		for i := 0; i < archiveKeyPresses; i++ {
			r.press(ctx, ctrl, "e", log)
			r.pacer.Wait(ctx, 500*time.Millisecond)
		}
		r.pacer.Wait(ctx, 2*time.Second)
	}

	if err := ctrl.Click(ctx, selOK, 3*time.Second); err == nil {
		log.Debug().Msg("confirmed archive")
	}
}

// deleteAll empties the Inbox folder through its context menu.
func (r *Runner) deleteAll(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	if err := ctrl.RightClick(ctx, selInboxTreeItem, 10*time.Second); err != nil {
		return fmt.Errorf("inbox folder menu: %w", err)
	}
	if err := ctrl.Click(ctx, selEmptyMenuItem, 10*time.Second); err != nil {
		return fmt.Errorf("empty menu item: %w", err)
	}

	var lastErr error
	for try := 0; try < 2; try++ {
		if lastErr = ctrl.Click(ctx, selDeleteAllButton, 10*time.Second); lastErr == nil {
			break
		}
		log.Warn().Err(lastErr).Int("try", try+1).Msg("delete all click failed")
		r.pacer.Wait(ctx, time.Second)
	}
	if lastErr != nil {
		return fmt.Errorf("delete all: %w", lastErr)
	}
	log.Info().Msg("inbox emptied")
	r.pacer.Wait(ctx, 20*time.Second)
	r.pacer.Wait(ctx, 3*time.Second)
	return nil
}

// archiveByDomain archives Inbox messages from target senders only.
func (r *Runner) archiveByDomain(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	if err := ctrl.Click(ctx, selInbox, 10*time.Second); err != nil {
		return fmt.Errorf("inbox folder: %w", err)
	}
	r.pacer.Jitter(ctx)
	if err := r.archiveMatching(ctx, ctrl, log); err != nil {
		return err
	}
	if err := r.switchTab(ctx, ctrl, "Other", 5*time.Second); err != nil {
		log.Info().Err(err).Msg("other tab not processed")
		return nil
	}
	return r.archiveMatching(ctx, ctrl, log)
}

func (r *Runner) archiveMatching(ctx context.Context, ctrl browser.Controller, log zerolog.Logger) error {
	processed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.pacer.Wait(ctx, 3*time.Second)
		ids, err := ctrl.VisibleAttr(ctx, selRow, "data-convid")
		if err != nil || len(ids) == 0 {
			log.Info().Msg("no messages on page")
			return nil
		}

		fresh := 0
		for _, id := range ids {
			if _, done := processed[id]; done {
				continue
			}
			processed[id] = struct{}{}
			fresh++

			row := selRowByID(id)
			sender, err := ctrl.ChildAttr(ctx, row, selSender, "title", 3*time.Second)
			if err != nil || !r.isTarget(sender) {
				continue
			}
			log.Info().Str("sender", sender).Msg("archiving message")
			if err := r.openRow(ctx, ctrl, row); err != nil {
				log.Warn().Err(err).Str("convid", id).Msg("could not open message")
				continue
			}
			r.press(ctx, ctrl, "Enter", log)
			r.pacer.Wait(ctx, 500*time.Millisecond)
			r.press(ctx, ctrl, "e", log)
			r.pacer.Jitter(ctx)
			if err := ctrl.WaitGone(ctx, row, 5*time.Second); err != nil {
				log.Warn().Str("convid", id).Msg("message still in list")
			}
		}
		if fresh == 0 {
			log.Info().Msg("no unprocessed visible messages")
			return nil
		}
	}
}

func (r *Runner) isTarget(sender string) bool {
	if sender == "" {
		return false
	}
	s := strings.ToLower(sender)
	for _, d := range r.cfg.TargetDomains {
		if d != "" && strings.Contains(s, strings.ToLower(d)) {
			return true
		}
	}
	return false
}
