// Package flows contains the token service's decision logic, expressed over
// dependency structs of closures so each flow can be exercised without Redis
// or the root package. The root package wires real stores into the deps and
// maps failure kinds onto its uniform public errors.
package flows
