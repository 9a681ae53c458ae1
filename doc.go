/*
Package strix answers questions through one of two pipelines and streams every
step of the way as ordered envelopes.

A request is routed by a complexity score. Simple questions take the FAST
pipeline: load history, extract attached files, retrieve documents, stream one
generated answer. Complex questions take the DEEP pipeline, which plans the
work, then loops over reasoning, tool calls, verification and reflection until
the answer is consistent enough or the round limit is hit, and finally
synthesizes an answer from the collected evidence.

# Basic Usage

	engine, err := strix.New(
		strix.WithProvider(openai.GPT4oMini()),
		strix.WithConfig(cfg),
	)
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	res, err := engine.Run(ctx, strix.Request{Question: "why is the sky blue?"}, events.LoggingHook())

Envelopes reach the hook in sequence order, one run at a time. Stream returns
them on a channel instead.

# Failure handling

Only a failure in a stage the answer depends on ends a run with an error; the
stream then carries an error envelope as its last element. History, file
extraction, retrieval, tool calls and verification degrade to a status in
their envelope and the run continues. Persisting history and publishing
telemetry happen after the answer and never affect it.
*/
package strix
