package rbac

// Default policy for the exam surface.
var RolePermissions = map[string][]string{
	"student": {
		"exam:start",
		"exam:submit",
		"exam:view-result",
		"attempt:view-own",
	},
	"instructor": {
		"exam:view-result",
		"attempt:view-all",
		"questions:import",
	},
	"admin": {
		"*", // everything
	},
}
