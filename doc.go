// Package relay routes free-form user queries to specialized capability
// providers (calendar, tutor, code, web search), optionally revises the
// routing decision through a bounded reflexion loop, executes the chosen
// provider, and streams the result back with citation annotations.
//
// The core pieces:
//
//   - Registry: static name → capability descriptor mapping, built once at
//     startup and read-only afterward.
//   - Classifier: one backend call that turns (query, history, registry)
//     into a RoutingDecision with a reproducible confidence heuristic.
//   - Evaluator: scores a decision by blending a model critique with an
//     embedding-based quantitative score.
//   - Refiner: the bounded retry loop around Classifier + Evaluator.
//   - Dispatcher: invokes the chosen provider, converting failures into
//     structured errors instead of crashing the turn.
//   - Aggregator: consumes a chunked provider stream under a per-chunk
//     watchdog, forwarding content immediately and buffering citations.
//   - Annotator: splices stable per-URL citation markers into finished text.
//   - Handler: the per-turn orchestration of all of the above, plus
//     fire-and-forget conversation persistence.
//
// Backends, embedding services, capability providers, and conversation
// stores are interfaces; implementations live in backend/, providers/,
// and store/ subpackages.
package relay
