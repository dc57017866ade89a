package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"studytrack/internal/client"
	"studytrack/internal/config"
	"studytrack/internal/events"
	"studytrack/internal/logger"
	"studytrack/internal/models"
	"studytrack/internal/tracker"
)

func main() {
	cfg := config.LoadTracker()
	log := logger.NewWithOutput(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL, cfg.APIToken, cfg.HTTPTimeout)
	bus := events.NewBus()

	t := tracker.New(api, api, bus, log, tracker.Config{
		TickInterval: cfg.TickInterval,
		PollInterval: cfg.PollInterval,
		Policy: tracker.ProgressPolicy{
			PointsPerHour: cfg.MilestonePointsPerHour,
			MaxPoints:     cfg.MilestoneMaxPoints,
		},
		OnTick: func(elapsed string) { fmt.Printf("\r%s ", elapsed) },
	})

	unsubscribe := bus.Subscribe(events.MilestoneUpdated, func(p events.Payload) {
		fmt.Printf("\nmilestone %s is now at %.1f%%\n", p.MilestoneID, p.Progress)
	})
	defer unsubscribe()

	relay := events.NewRelay(cfg.WSURL, cfg.APIToken, bus, log)
	go relay.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("tracker stopped")
		}
	}()

	fmt.Println(usage)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var link *tracker.MilestoneLink
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if cmd.name == "quit" || cmd.name == "exit" {
				break loop
			}
			link = execute(ctx, t, cmd, link, log)
		}
	}

	stop()
	<-done
}

func execute(ctx context.Context, t *tracker.Tracker, cmd command, link *tracker.MilestoneLink, log *logrus.Logger) *tracker.MilestoneLink {
	switch cmd.name {
	case "start", "plan":
		s, err := t.Start(ctx, cmd.start)
		if err != nil {
			report(err)
			return link
		}
		fmt.Printf("started %q\n", s.Subject)
	case "pause":
		if err := t.Pause(ctx); err != nil {
			report(err)
			return link
		}
		fmt.Println("\non break")
	case "resume":
		if err := t.Resume(ctx); err != nil {
			report(err)
			return link
		}
		fmt.Println("\nback to studying")
	case "stop":
		req := cmd.stop
		req.Milestone = link
		res, err := t.Stop(ctx, req)
		if err != nil {
			report(err)
			return link
		}
		fmt.Printf("\nstudied %s\n", tracker.FormatElapsed(res.Activity.TotalStudySeconds))
		if res.MilestoneErr != nil {
			fmt.Println("session saved, but the milestone could not be updated")
		} else if res.MilestoneUpdated {
			fmt.Printf("milestone progress %.1f%%\n", res.MilestoneProgress)
			link = &tracker.MilestoneLink{ID: link.ID, Progress: res.MilestoneProgress}
		}
	case "link":
		fmt.Printf("crediting milestone %s\n", cmd.milestone.ID)
		return cmd.milestone
	case "unlink":
		return nil
	case "status":
		fmt.Printf("%s %s\n", t.State(), t.Elapsed())
		if s := t.Session(); s != nil {
			fmt.Printf("subject: %s, breaks: %d\n", s.Subject, len(s.Breaks))
		}
	case "help":
		fmt.Println(usage)
	default:
		log.WithField("command", cmd.name).Debug("ignored command")
	}
	return link
}

func report(err error) {
	var (
		validation *models.ValidationError
		conflict   *models.ConflictError
		notFound   *models.NotFoundError
	)
	switch {
	case errors.Is(err, tracker.ErrBusy):
		fmt.Println("\nanother command is still running")
	case errors.As(err, &validation):
		for field, msg := range validation.Fields {
			fmt.Printf("\n%s: %s\n", field, msg)
		}
	case errors.As(err, &conflict):
		fmt.Printf("\n%s\n", conflict.Message)
	case errors.As(err, &notFound):
		fmt.Println("\nno active session")
	default:
		fmt.Printf("\nrequest failed: %v\n", err)
	}
}
