// Package framework contains the building blocks the dynamic data source
// engine is assembled from. The framework is split into sub-packages for
// specific functionality; this root package holds no code.
//
// The scope sub-package owns groups of beans with a shared lifecycle and
// is what isolated initialization units are built on.
package framework
