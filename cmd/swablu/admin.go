package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skytemple/swablu/internal/store"
)

const adminUsage = `usage: swablu [-config file] admin <command>

  hack get <key>
  hack put <key> <role> [name] [url]
  hack list [roles|*]
  jam create|update <key> <config.json>
  jam show <key>
  jam list
  jam vote <jam> <user-id> <hack>
  jam tally <jam>
  rep show <user-id>
  rep give <user-id> <amount>
  rep top
  renders [-author id] [-outcome ok|user_error|internal_error] [-before id] [-n count]
  renders message <message-id>`

var errUsage = errors.New(adminUsage)

// runAdmin executes one maintenance command against the store.
func runAdmin(ctx context.Context, db *store.Store, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "hack":
		return adminHack(ctx, db, out, args[1:])
	case "jam":
		return adminJam(ctx, db, out, args[1:])
	case "rep":
		return adminRep(ctx, db, out, args[1:])
	case "renders":
		return adminRenders(ctx, db, out, args[1:])
	}
	return errUsage
}

func adminHack(ctx context.Context, db *store.Store, out io.Writer, args []string) error {
	switch {
	case len(args) == 2 && args[0] == "get":
		h, err := db.RomHack(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n  name: %s\n  role: %s\n  url: %s\n  updated: %s\n",
			h.Key, h.Name, h.RoleName, h.URLMain, h.UpdatedAt.Format(time.RFC3339))
		return nil
	case len(args) >= 3 && len(args) <= 5 && args[0] == "put":
		h := store.RomHack{Key: args[1], RoleName: args[2], Name: args[1]}
		if len(args) > 3 {
			h.Name = args[3]
		}
		if len(args) > 4 {
			h.URLMain = args[4]
		}
		if old, err := db.RomHack(ctx, h.Key); err == nil {
			h.Description, h.URLDiscord, h.URLDownload = old.Description, old.URLDiscord, old.URLDownload
			h.Video, h.HackType, h.MessageID = old.Video, old.HackType, old.MessageID
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		id, err := db.PutRomHack(ctx, h)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Stored %s (id %d)\n", h.Key, id)
		return nil
	case (len(args) == 1 || len(args) == 2) && args[0] == "list":
		roles := "*"
		if len(args) == 2 {
			roles = args[1]
		}
		return listHacks(ctx, db, out, roles)
	}
	return errUsage
}

func listHacks(ctx context.Context, db *store.Store, out io.Writer, roles string) error {
	var filter []string
	if roles != "*" {
		filter = strings.Split(roles, ",")
	}
	hacks, err := db.RomHacks(ctx, filter)
	if err != nil {
		return err
	}
	for _, h := range hacks {
		fmt.Fprintf(out, "%-24s %-32s %s\n", h.Key, h.Name, h.RoleName)
	}
	return nil
}

func adminJam(ctx context.Context, db *store.Store, out io.Writer, args []string) error {
	switch {
	case len(args) == 3 && (args[0] == "create" || args[0] == "update"):
		config, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}
		if args[0] == "create" {
			err = db.CreateJam(ctx, args[1], json.RawMessage(config))
		} else {
			err = db.UpdateJam(ctx, args[1], json.RawMessage(config))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Jam %s saved\n", args[1])
		return nil
	case len(args) == 2 && args[0] == "show":
		j, err := db.Jam(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", j.Config)
		return nil
	case len(args) == 1 && args[0] == "list":
		jams, err := db.Jams(ctx)
		if err != nil {
			return err
		}
		for _, j := range jams {
			fmt.Fprintln(out, j.Key)
		}
		return nil
	case len(args) == 4 && args[0] == "vote":
		user, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[2])
		}
		if _, err := db.Jam(ctx, args[1]); err != nil {
			return err
		}
		return db.Vote(ctx, args[1], user, args[3])
	case len(args) == 2 && args[0] == "tally":
		tally, err := db.Tally(ctx, args[1])
		if err != nil {
			return err
		}
		hacks := make([]string, 0, len(tally))
		for h := range tally {
			hacks = append(hacks, h)
		}
		sort.Slice(hacks, func(i, j int) bool {
			if tally[hacks[i]] != tally[hacks[j]] {
				return tally[hacks[i]] > tally[hacks[j]]
			}
			return hacks[i] < hacks[j]
		})
		for _, h := range hacks {
			fmt.Fprintf(out, "%4d  %s\n", tally[h], h)
		}
		return nil
	}
	return errUsage
}

func adminRep(ctx context.Context, db *store.Store, out io.Writer, args []string) error {
	switch {
	case len(args) == 2 && args[0] == "show":
		user, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		p, err := db.Points(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d: %d points\n", user, p)
		return nil
	case len(args) == 3 && args[0] == "give":
		user, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		amount, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[2])
		}
		p, err := db.GivePoints(ctx, user, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d: %d points\n", user, p)
		return nil
	case len(args) == 1 && args[0] == "top":
		board, err := db.Leaderboard(ctx)
		if err != nil {
			return err
		}
		for i, r := range board {
			fmt.Fprintf(out, "%3d. %-20d %d\n", i+1, r.DiscordID, r.Points)
		}
		return nil
	}
	return errUsage
}

func adminRenders(ctx context.Context, db *store.Store, out io.Writer, args []string) error {
	if len(args) == 2 && args[0] == "message" {
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q", args[1])
		}
		renders, err := db.RendersFor(ctx, id)
		if err != nil {
			return err
		}
		printRenders(out, renders)
		return nil
	}

	fs := flag.NewFlagSet("renders", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	author := fs.Uint64("author", 0, "")
	outcome := fs.String("outcome", "", "")
	before := fs.Int64("before", 0, "")
	n := fs.Int("n", 20, "")
	if err := fs.Parse(args); err != nil || fs.NArg() > 0 {
		return errUsage
	}
	renders, err := db.Renders(ctx, store.RenderFilter{AuthorID: *author, Outcome: *outcome, Before: *before, Limit: *n})
	if err != nil {
		return err
	}
	printRenders(out, renders)
	if len(renders) == *n {
		fmt.Fprintf(out, "more: -before %d\n", renders[len(renders)-1].ID)
	}
	return nil
}

func printRenders(out io.Writer, renders []store.RenderRecord) {
	for _, r := range renders {
		archive := "builtin"
		if r.ArchiveDigest != "" {
			archive = r.ArchiveDigest[:min(16, len(r.ArchiveDigest))]
		}
		fmt.Fprintf(out, "#%d %s  msg=%d seed=%d tileset=%d archive=%s %s %s (%s)\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.MessageID, r.Seed, r.TilesetID, archive,
			r.Outcome, r.ErrorTitle, r.Duration)
	}
}
