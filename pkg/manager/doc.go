// Package manager implements the Manager process: the single point of
// truth for queue contents, plan lifecycle, and environment state. It
// serves the external command surface (queue/history/environment/re_*/
// manager_stop/manager_kill/plans_allowed/devices_allowed), drives the
// Worker over its own rpc.Link, and talks to the Watchdog over a second
// rpc.Link to manage the Worker's OS process lifetime.
package manager
