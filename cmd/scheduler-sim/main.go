package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/signalsfoundry/ran-scheduler/core"
	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/internal/observability"
	"github.com/signalsfoundry/ran-scheduler/model"
	"github.com/signalsfoundry/ran-scheduler/timectrl"
)

func main() {
	nofSlots := flag.Int("slots", 2000, "number of slots to simulate (<=0 runs until interrupted)")
	nofUEs := flag.Int("ues", 4, "number of UEs to attach")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time slot pacing)")
	tdd := flag.Bool("tdd", false, "use a TDD cell instead of FDD")
	metricsAddr := flag.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewFromEnv()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracing init failed: %v\n", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewSchedulerCollector(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics init failed: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	cell := buildCell(*tdd)
	sched, err := core.NewUEScheduler(cell, core.DefaultSchedulerConfig(), collector, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler init failed: %v\n", err)
		os.Exit(1)
	}

	// Attach UEs in fallback, each with a Msg4 payload waiting on SRB0.
	for i := 0; i < *nofUEs && i < model.MaxNofUEs; i++ {
		idx := model.UEIndex(i)
		cmd := core.UECreationCommand{
			Config: model.UEConfig{
				UEIndex: idx,
				RNTI:    model.RNTI(0x4601 + i),
				Cells:   []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
			},
			StartsInFallback: true,
		}
		if err := sched.HandleUECreation(ctx, cmd); err != nil {
			fmt.Fprintf(os.Stderr, "ue %d creation failed: %v\n", i, err)
			os.Exit(1)
		}
		sched.HandleDLBufferStateIndication(idx, model.LCIDSRB0, 120+10*i)
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	sc := timectrl.NewSlotController(model.NewSlot(cell.SCS, 0, 0), mode)

	sc.AddListener(func(s model.Slot) {
		res := sched.RunSlot(s)

		// Play the radio side: every PUCCH acks its transport block and every
		// PUSCH passes CRC, so HARQ processes drain immediately.
		for _, pucch := range res.UL.PUCCHs {
			sched.HandleACKInfo(pucch.UEIndex, cell.CellIndex, pucch.HARQID, true)
		}
		for _, pusch := range res.UL.PUSCHs {
			sched.HandleCRCInfo(pusch.UEIndex, cell.CellIndex, pusch.HARQID, true)
		}

		for _, grant := range res.DL.UEGrants {
			kind := "newtx"
			switch {
			case grant.IsRetx:
				kind = "retx"
			case grant.IsFallback:
				kind = "fallback"
			}
			fmt.Printf("[%s] DL %-8s rnti=0x%04x harq=%d rbs=%s mcs=%d tbs=%dB\n",
				s, kind, uint(grant.RNTI), grant.HARQID,
				grant.RBs, grant.Codewords[0].MCS, grant.Codewords[0].TBSBytes)
		}

		// A delivered Msg4 completes the connection setup: hand the UE a
		// dedicated configuration with SRB1 and a data bearer, and a little
		// uplink traffic to chew on.
		for _, grant := range res.DL.UEGrants {
			if !grant.IsFallback || grant.IsRetx {
				continue
			}
			idx := grant.UEIndex
			cfg := model.UEConfig{
				UEIndex: idx,
				RNTI:    grant.RNTI,
				Cells:   []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
				LogicalChannels: []model.LogicalChannelConfig{
					{LCID: model.LCIDSRB1, LCG: 0},
					{LCID: model.LCIDMinDRB, LCG: 1},
				},
			}
			if err := sched.HandleUEReconfiguration(ctx, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "ue %d reconfiguration failed: %v\n", idx, err)
				continue
			}
			sched.HandleDLBufferStateIndication(idx, model.LCIDMinDRB, 1500)
			sched.HandleSRIndication(idx)
			sched.HandleULBSR(idx, 1, 800)
		}
	})

	fmt.Printf("Starting scheduler simulation: slots=%d ues=%d duplex=%s\n",
		*nofSlots, *nofUEs, cell.Duplex)
	<-sc.Run(ctx, *nofSlots)
	fmt.Println("Simulation complete.")
}

// buildCell returns a 106-PRB carrier at 15 kHz SCS with CORESET#0 on the
// first 36 PRBs, the layout used throughout the test suite.
func buildCell(tdd bool) *model.CellConfig {
	cfg := &model.CellConfig{
		CellIndex: 0,
		SCS:       0,
		CRBs:      model.Interval{Start: 0, Stop: 106},
		InitDLBWP: model.BWPConfig{SCS: 0, RBs: model.Interval{Start: 0, Stop: 106}},
		InitULBWP: model.BWPConfig{SCS: 0, RBs: model.Interval{Start: 0, Stop: 106}},
		Coreset0:  &model.CORESETConfig{ID: 0, RBs: model.Interval{Start: 0, Stop: 36}, DurationSymbols: 2},
		SearchSpaces: []model.SearchSpaceConfig{
			{ID: 1, CORESETID: 0, Common: true},
			{ID: 2, CORESETID: 0, Common: false},
		},
		PDSCHSymbols: model.Interval{Start: 2, Stop: 14},
		PUSCHSymbols: model.Interval{Start: 0, Stop: 14},
		K0:           []uint{0},
		K1Candidates: []uint{4, 5, 6, 7, 8},
		K2:           4,
		Duplex:       model.DuplexFDD,
	}
	if tdd {
		cfg.Duplex = model.DuplexTDD
		cfg.TDD = &model.TDDPattern{PeriodSlots: 10, DLSlots: 6, DLSymbols: 8, ULSlots: 3}
	}
	return cfg
}
