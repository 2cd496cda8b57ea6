// Package corrections loads the corrections feed: a document listing
// records by primary key and users by user id together with the fields to
// override.
//
//	corrections:
//	  - primary_key: I3f35c7f8
//	    company_name: IBM
//	  - primary_key: 6a1623140f27
//	    commit:
//	      lines_added: 0
//	user_corrections:
//	  - user_id: john_doe
//	    companies:
//	      - company_name: Mirantis
//	        end_date: 0
//
// Entries without their key are rejected at load time.
package corrections
