// Package memory configures Go's soft memory limit for containerized
// deployments.
//
// GOMAXPROCS follows cgroup CPU quotas automatically but GOMEMLIMIT does
// not, so a gateway running under a memory limit has to be told about it.
// [ConfigureFromEnv] reads:
//
//   - GOMEMLIMIT: standard Go variable; when set it takes precedence
//   - MEMORY_LIMIT: container limit, usually injected via the Downward API
//     ("536870912" or "512Mi")
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the heap (default 0.9)
//
// Example Downward API wiring:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// The applied limit is exported as metadb_gateway_go_memory_limit_bytes.
package memory
