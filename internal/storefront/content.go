package storefront

// Store is a retail partner stocking the range.
type Store struct {
	Name    string
	Address string
	Phone   string
	Hours   string
}

// Contact is the public contact card.
type Contact struct {
	Phone string
	Email string
	Hours []string
}

// Stores lists the retail partners shown on /stores.
var Stores = []Store{
	{Name: "Panda Mart", Address: "Garden City Mall, Thika Road, Nairobi", Phone: "0202 311 166", Hours: "9:00 AM - 9:00 PM"},
	{Name: "Magunas", Address: "All Outlets", Hours: "Varies by location"},
	{Name: "Best Lady", Address: "All Outlets", Hours: "Varies by location"},
	{Name: "Mathais Supermarket", Address: "Multiple locations in Central Kenya", Hours: "8:00 AM - 8:00 PM"},
	{Name: "Powerstar Supermarket", Address: "Eastlands, Nairobi", Hours: "8:30 AM - 9:00 PM"},
	{Name: "Jamaa Supermarket", Address: "Downtown, Nakuru", Phone: "0722 123 456", Hours: "8:00 AM - 8:00 PM"},
}

// ContactDetails is shown on /contacts and /wholesale.
var ContactDetails = Contact{
	Phone: "+254 706 238 579",
	Email: "info@sassyproducts.co.ke",
	Hours: []string{"Mon - Fri: 8:00 AM - 4:00 PM", "Sat: 8:00 AM - 1:00 PM", "Sunday: Closed"},
}
