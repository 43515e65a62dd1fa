package projections

// AllHandlers returns every projection in the system, in a stable order.
// The runner in cmd and the test harness both register exactly this set so
// read models never diverge between environments.
func AllHandlers() []Handler {
	return []Handler{
		NewUserDirectory(),
		NewRecipeList(),
		NewMealSchedule(),
		NewDashboard(),
		NewShoppingList(),
	}
}
