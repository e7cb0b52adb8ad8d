package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vytor/wordflash/internal/conflict"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/services"
	"github.com/vytor/wordflash/internal/srs"
)

var errNoRemote = errors.New("REMOTE_URL is not set; sync is disabled")

func needArgs(args []string, n int, form string) error {
	if len(args) < n {
		return fmt.Errorf("usage: review %s", form)
	}
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	if err := needArgs(args, 2, "add <word> <translation> [example...]"); err != nil {
		return err
	}
	item, err := a.vocab.Add(ctx, services.ItemInput{Word: args[0], Translation: args[1], Examples: args[2:]})
	if err != nil {
		return err
	}
	fmt.Printf("added %s (%s)\n", item.Word, item.ID)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	if err := needArgs(args, 3, "edit <id> <word> <translation>"); err != nil {
		return err
	}
	current, err := a.vocab.Get(ctx, args[0])
	if err != nil {
		return err
	}
	item, err := a.vocab.Update(ctx, args[0], services.ItemInput{
		Word:        args[1],
		Translation: args[2],
		Difficulty:  current.Difficulty,
		Examples:    current.Examples,
	})
	if err != nil {
		return err
	}
	fmt.Printf("updated %s\n", item.ID)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "delete <id>"); err != nil {
		return err
	}
	return a.vocab.Delete(ctx, args[0])
}

func printItems(out io.Writer, items []models.VocabularyItem) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORD\tTRANSLATION\tMASTERY\tNEXT REVIEW")
	for _, it := range items {
		next := "-"
		if it.NextReviewAt != nil {
			next = it.NextReviewAt.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Word, it.Translation, it.MasteryLevel, next)
	}
	w.Flush()
}

func (a *app) list(ctx context.Context) error {
	items, err := a.vocab.List(ctx)
	if err != nil {
		return err
	}
	printItems(os.Stdout, items)
	return nil
}

func (a *app) due(ctx context.Context) error {
	items, err := a.vocab.ListDue(ctx, srs.Today(time.Now()), 0)
	if err != nil {
		return err
	}
	printItems(os.Stdout, items)
	return nil
}

// study runs one session, reading a 0-5 grade per card from in. An empty
// line or "q" ends the session early.
func (a *app) study(ctx context.Context, limit int, in io.Reader, out io.Writer) error {
	sess, err := a.sessions.StartSession(ctx, limit)
	if errors.Is(err, apperrors.ErrNoCardsAvailable) {
		fmt.Fprintln(out, "nothing to review")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s: %d cards\n", sess.ID, sess.TotalCards)

	scanner := bufio.NewScanner(in)
	for {
		card, ok := a.sessions.Current()
		if !ok {
			break
		}
		fmt.Fprintf(out, "\n%s\n", card.Word)
		for _, ex := range card.Examples {
			fmt.Fprintf(out, "  %s\n", ex)
		}
		fmt.Fprint(out, "grade 0-5 (enter to stop): ")

		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "q" {
			break
		}
		grade, err := strconv.Atoi(line)
		if err != nil || !srs.ValidQuality(grade) {
			fmt.Fprintln(out, "grade must be a number from 0 to 5")
			continue
		}

		res, err := a.sessions.SubmitReview(ctx, grade)
		if errors.Is(err, apperrors.ErrNotFound) {
			fmt.Fprintln(out, "card was deleted, skipping")
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %s, next review in %d day(s)\n", res.Item.Word, res.Item.Translation, res.Item.IntervalDays)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	final, ok := a.sessions.Session()
	if ok && final.Status == models.SessionActive {
		ended, err := a.sessions.EndSession(ctx)
		if err != nil {
			return err
		}
		final = *ended
	}
	fmt.Fprintf(out, "\n%s: %d/%d cards, %.0f%% correct\n", final.Status, final.CardsCompleted, final.TotalCards, final.Accuracy)
	return nil
}

func (a *app) history(ctx context.Context) error {
	recent, err := a.sessions.History(ctx, 10)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tCARDS\tACCURACY")
	for _, s := range recent {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.0f%%\n", s.StartedAt.Local().Format(time.DateTime), s.Status, s.CardsCompleted, s.TotalCards, s.Accuracy)
	}
	return w.Flush()
}

func (a *app) sync(ctx context.Context) error {
	if a.engine == nil {
		return errNoRemote
	}
	res, err := a.engine.Pass(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("attempted %d, applied %d, conflicts %d, failed %d, stuck %d\n",
		res.Attempted, res.Applied, res.Conflicts, res.Failed, res.Stuck)
	return nil
}

func (a *app) status(ctx context.Context, out io.Writer) error {
	untracked, err := a.untracked(ctx)
	if err != nil {
		return err
	}
	if a.engine == nil {
		n, err := a.queue.Len(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "local only, durable=%t, %d queued changes, %d unsynced items\n", a.backend.Durable, n, len(untracked))
		return nil
	}
	st, err := a.engine.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "online=%t durable=%t pending=%d stuck=%d conflicts=%d\n",
		st.Online, a.backend.Durable, st.Pending, st.Stuck, st.Conflicts)

	stuck, err := a.queue.Stuck(ctx)
	if err != nil {
		return err
	}
	for _, c := range stuck {
		fmt.Fprintf(out, "  stuck %s %s %s: %s\n", c.ID, c.Operation, c.VocabularyID, c.LastError)
	}
	for _, item := range untracked {
		fmt.Fprintf(out, "  unsynced %s %s: no queued change\n", item.ID, item.Word)
	}
	return nil
}

// untracked returns dirty items that have no queued change.
func (a *app) untracked(ctx context.Context) ([]models.VocabularyItem, error) {
	dirty, err := a.store.ListDirty(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.VocabularyItem
	for _, item := range dirty {
		_, err := a.queue.ForItem(ctx, item.ID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			out = append(out, item)
		case err != nil:
			return nil, err
		}
	}
	return out, nil
}

// listConflicts runs a pass first: conflicts are detected by passes and
// not persisted across runs.
func (a *app) listConflicts(ctx context.Context) error {
	if a.engine == nil {
		return errNoRemote
	}
	if _, err := a.engine.Pass(ctx); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLOCAL\tREMOTE\tDETECTED")
	for _, c := range a.engine.Conflicts() {
		fmt.Fprintf(w, "%s\t%s=%s\t%s=%s\t%s\n", c.VocabularyID,
			c.LocalItem.Word, c.LocalItem.Translation,
			c.RemoteItem.Word, c.RemoteItem.Translation,
			c.DetectedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func parseStrategy(s string) (conflict.Strategy, error) {
	switch s {
	case "local":
		return conflict.KeepLocal{}, nil
	case "remote":
		return conflict.KeepRemote{}, nil
	case "merge":
		return conflict.Merge{Fn: conflict.DefaultMerge}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q, want local, remote or merge", s)
}

func (a *app) resolve(ctx context.Context, args []string) error {
	if err := needArgs(args, 2, "resolve <id> local|remote|merge"); err != nil {
		return err
	}
	if a.engine == nil {
		return errNoRemote
	}
	strategy, err := parseStrategy(args[1])
	if err != nil {
		return err
	}
	// load outstanding conflicts for this run
	if _, err := a.engine.Pass(ctx); err != nil {
		return err
	}
	item, err := a.resolver.Resolve(ctx, args[0], strategy)
	if err != nil {
		return err
	}
	if item == nil {
		fmt.Println("item was deleted locally; the delete stands")
		return nil
	}
	fmt.Printf("resolved %s: %s = %s\n", item.ID, item.Word, item.Translation)
	return nil
}

func (a *app) retry(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "retry <change-id>"); err != nil {
		return err
	}
	if a.engine == nil {
		return errNoRemote
	}
	return a.engine.Retry(ctx, args[0])
}

func (a *app) discard(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "discard <change-id>"); err != nil {
		return err
	}
	if a.engine == nil {
		return a.queue.Discard(ctx, args[0])
	}
	return a.engine.Discard(ctx, args[0])
}
