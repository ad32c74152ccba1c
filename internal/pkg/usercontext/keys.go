package usercontext

// Session and locals keys shared between middleware and controllers.
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyUserID        = "USER_ID"
	KeyUsername      = "USER_NAME"
	KeyIsAdmin       = "USER_IS_ADMIN"
	KeyFromProtected = "FROM_PROTECTED"
	KeyUserPlan      = "user_plan"
)
