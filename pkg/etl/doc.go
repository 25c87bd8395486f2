// Package etl implements the schedule harvesting core: a bounded fan-out
// stage, the three-stage scrape pipeline built from it, additive stage
// summaries, and the chunk iteration state machine.
//
// A harvest is driven chunk by chunk:
//
//	state, err := etl.NewIterationState(prefixes, 10)
//	if err != nil {
//		return err
//	}
//	for !state.Done() {
//		chunk, err := state.Current()
//		if err != nil {
//			return err
//		}
//		records, summary, err := pipeline.Run(ctx, chunk)
//		if err != nil {
//			return err
//		}
//		if len(records) > 0 {
//			if err := store.BatchPut(ctx, pipeline.Kind(), records); err != nil {
//				return err
//			}
//		}
//		if state, err = etl.Step(state, summary); err != nil {
//			return err
//		}
//	}
//
// Failures of individual work items never escape a stage. They are classified
// as client, parser or unhandled failures and show up only as counts in the
// StageSummary. Each stage drains completely before the next one starts.
package etl
