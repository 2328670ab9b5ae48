// Package harness runs YAML write scenarios against a real collection and
// records what happened as a deterministic trace.
//
// # Scenario Format
//
//	name: pre_save_failure
//	description: "A failing pre-save hook leaves the committed value"
//	schema: |
//	  #Document: {
//	    passportId: string @primary()
//	    firstName:  string
//	  }
//	hooks:
//	  - name: veto
//	    operation: save
//	    phase: pre
//	    mode: series        # or parallel
//	    action: fail        # set | unset | fail | panic | noop
//	steps:
//	  - insert: { passportId: p1, firstName: Alice }
//	  - observe: { name: first, id: p1, field: firstName }
//	  - set: { id: p1, field: firstName, value: Bob }
//	  - save: p1
//	    expect: { error: pre_hook }
//	  - find: p1
//	    expect: { rev: 1, data: { firstName: Alice } }
//	assertions:
//	  - type: hook_count
//	    hook: veto
//	    count: 1
//
// Every step without an expect clause must succeed. Error kinds are
// pre_hook, validation, conflict, persist, post_hook, removed and not_found.
//
// # Trace
//
// Each step adds one event naming the hooks it fired: series hooks in run
// order, then parallel hooks sorted by name, pre phase before post. After
// each step every observer is drained in name order, adding emit and
// complete events. Revisions appear as their generation number only, so
// traces do not depend on revision hashes.
package harness
