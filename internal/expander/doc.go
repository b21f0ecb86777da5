// Package expander expands short label descriptions into richer text through
// an OpenAI-compatible chat completion stream.
//
// Expansion is an optional helper for annotators: the result is only ever
// offered as a suggestion, and a failed expansion never changes stored labels.
//
// # Usage
//
//	exp, err := expander.NewFromConfig(cfg.Expander, logger)
//	if err != nil {
//	    return err
//	}
//	seq, err := exp.Expand(ctx, "dusty lofi drums")
//	if err != nil {
//	    return err
//	}
//	for chunk, err := range seq {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk)
//	}
//
// Opening the stream is retried with exponential backoff on rate limiting and
// server errors. Completed expansions are kept in an LRU cache keyed by model
// and input, so asking twice for the same text does not hit the API again.
package expander
