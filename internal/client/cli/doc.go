// Package cli implements the interactive tracking client.
//
// On start the client restores the saved username (prompting for one when
// none is stored), checks location capability and requests one position.
// Commands are then read from stdin:
//
//	help                 list commands
//	start | stop         start or stop tracking
//	refresh              request one position now
//	status               show position, identity and save counters
//	history [name]       show stored history (defaults to current user)
//	recheck              re-check location capability
//	login [name]         set the username
//	logout               forget the username
//	whoami               print the username
//	check <name>         ask the server whether name has history
//	archive [dir]        snapshot history to object storage, optionally downloading it
//	exit | quit          stop tracking and leave
package cli
