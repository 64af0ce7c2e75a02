// Package field defines the identity types shared by the classifier, the
// aggregation resolver and the engine: scopes, field references, value kinds,
// roles and the normalized descriptor derived from a field's name, identifier
// and label. Extract is the only producer of descriptors; it is a pure function
// of the live field snapshot and the label index supplied by the caller.
package field
