// Package convergence decides and executes the corrective actions that
// bring the database tier and its dependent services to the running
// state, in dependency order, with bounded retries.
package convergence
