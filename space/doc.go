// Package space defines observation and action spaces as an explicit tagged
// variant with a codec per variant.
//
// # Variants
//
//   - [Discrete]: integers {Start, ..., Start+N-1}
//   - [Box]: bounded or unbounded float64 arrays of a fixed shape
//   - [MultiDiscrete]: vectors of independent discrete ranges
//   - [MultiBinary]: binary vectors
//   - [Dict]: named sub-spaces, in sorted key order
//   - [Tuple]: ordered sub-spaces
//
// Every space can flatten a member into a float64 vector ([Space.Flatten])
// and back ([Space.Unflatten]), and store a per-step sequence of members as a
// typed [Column] ([Space.Encode] / [Space.Decode]). Columns keep the Go type
// of every leaf, so a stored episode decodes to values equal to the ones
// written.
//
// Space definitions are serialized with [Marshal] into the dataset's root
// attributes and reconstructed once, when the dataset is opened:
//
//	obs := space.NewDict(map[string]space.Space{
//	    "position": space.NewBox(-1, 1, 3),
//	    "mode":     space.NewDiscrete(4),
//	})
//	desc, _ := space.Marshal(obs)
//	restored, _ := space.Unmarshal(desc)
package space
