package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/amhandlers"
	"github.com/coriolis-systems/workercore/internal/concurrency"
)

// scenarioReporter counts scenario-completed events posted to it, decoupled
// from the scenario functions themselves via an EventLoop: selftest posts
// one event per finished scenario and the loop fans it out on its own
// goroutine, independent of the synchronous worker.Progress path.
type scenarioReporter struct{ completed int }

func (r *scenarioReporter) HandleEvent(ev concurrency.Event) {
	if _, ok := ev.Data.(string); ok {
		r.completed++
	}
}

const (
	numSenders     = 10
	sendsPerSender = 4
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Exercise the many-to-one AM scenario and the wakeup pipeline against the fake transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		loop := concurrency.NewEventLoop(4, 8)
		reporter := &scenarioReporter{}
		loop.RegisterHandler(reporter)
		go loop.Run()
		defer loop.Stop()

		if err := runManyToOne(); err != nil {
			fmt.Fprintf(out, "FAIL many-to-one AM: %v\n", err)
			return err
		}
		fmt.Fprintln(out, "PASS many-to-one AM")
		loop.Post(concurrency.Event{Data: "many-to-one"})

		if err := runWakeupPipeline(); err != nil {
			fmt.Fprintf(out, "FAIL wakeup pipeline: %v\n", err)
			return err
		}
		fmt.Fprintln(out, "PASS wakeup pipeline")
		loop.Post(concurrency.Event{Data: "wakeup-pipeline"})
		time.Sleep(5 * time.Millisecond)
		fmt.Fprintf(out, "%d/2 scenarios reported\n", reporter.completed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

// runManyToOne drives ten independent sender interfaces against one
// receiver worker, verifying every handler invocation checks out and no
// deferred descriptor is lost.
func runManyToOne() error {
	amhandlers.Instance().Reset()

	w, err := buildWorker()
	if err != nil {
		return fmt.Errorf("build receiver worker: %w", err)
	}
	defer w.Destroy()

	addrBlob, err := w.GetAddress()
	if err != nil {
		return fmt.Errorf("get receiver address: %w", err)
	}
	receiverAddr, err := resourceAddress(addrBlob, 0)
	if err != nil {
		return err
	}

	for s := 0; s < numSenders; s++ {
		senderDrv := fake.NewDriver(fake.ResourceSpec{
			TransportName: "loop",
			DeviceName:    fmt.Sprintf("sender%d", s),
			AM:            fake.DefaultAMLimits,
		})
		ifc, err := senderDrv.OpenInterface(0, nil)
		if err != nil {
			return fmt.Errorf("open sender %d interface: %w", s, err)
		}
		ep, err := ifc.NewEndpoint(receiverAddr)
		if err != nil {
			return fmt.Errorf("connect sender %d: %w", s, err)
		}
		for m := 0; m < sendsPerSender; m++ {
			payload := []byte(fmt.Sprintf("sender-%d-msg-%d", s, m))
			if err := ep.SendAM(amhandlers.AMIDEcho, amhandlers.StampHeadroom(), payload); err != nil {
				return fmt.Errorf("send %d/%d from sender %d: %w", m, sendsPerSender, s, err)
			}
		}
	}

	total := numSenders * sendsPerSender
	processed := w.Progress()
	if processed != total {
		return fmt.Errorf("progress processed %d events, want %d", processed, total)
	}

	deferred := amhandlers.Instance().DrainStored()
	invocations, checksOK, checksFail := amhandlers.Instance().Stats()
	if invocations != int64(total) {
		return fmt.Errorf("handler invocations = %d, want %d", invocations, total)
	}
	if checksFail != 0 {
		return fmt.Errorf("%d sentinel checks failed", checksFail)
	}
	if checksOK != int64(total) {
		return fmt.Errorf("sentinel checks OK = %d, want %d", checksOK, total)
	}
	wantDeferred := total / 4
	if deferred != wantDeferred {
		return fmt.Errorf("drained %d deferred descriptors, want %d", deferred, wantDeferred)
	}
	return nil
}

// runWakeupPipeline exercises get_efd/arm/wait/signal: a signal delivered
// after arm unblocks a pending wait, and a signal delivered before arm
// leaves wait non-blocking.
func runWakeupPipeline() error {
	w, err := buildWorker()
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}
	defer w.Destroy()

	if _, err := w.GetEFD(); err != nil {
		return fmt.Errorf("get_efd: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		done <- w.Signal()
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- w.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("wait after signal: %w", err)
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("wait did not unblock within timeout")
	}
	if err := <-done; err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	if err := w.Signal(); err != nil {
		return fmt.Errorf("pre-arm signal: %w", err)
	}
	select {
	case err := <-func() chan error {
		c := make(chan error, 1)
		go func() { c <- w.Wait() }()
		return c
	}():
		if err != nil {
			return fmt.Errorf("wait after pre-arm signal: %w", err)
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("wait blocked after a signal that preceded arm")
	}

	return nil
}
