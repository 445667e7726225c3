// Package processors contains generic processor nodes.
package processors
