package acmechallenge

// Generic is the catch-all variant for challenge types not explicitly
// modeled by this package. It still offers the common lifecycle (Trigger,
// Fetch) so a client can drive an experimental challenge type it doesn't
// know how to satisfy itself, as long as the key authorization is all it
// needs to hand off to external validation tooling.
type Generic struct {
	base
}
