package constants

const TestSmallRosterFile = "../../shared_files/synthetic_rosters/roster_small.csv"
const TestMixedRosterFile = "../../shared_files/synthetic_rosters/roster_mixed.csv"
const TestBadHeaderRosterFile = "../../shared_files/synthetic_rosters/roster_bad_header.csv"

const DefaultPageSize = 20
const MaxPageSize = 100

// This is set during compilation.  See build_and_package.sh in the ops repo
var Version = "latest"
